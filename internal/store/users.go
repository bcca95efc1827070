package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/projectdesk/projectdesk/internal/model"
)

// CreateUser inserts a new user account. The ID, CreatedAt, and UpdatedAt
// fields are populated after a successful insert.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	q := s.db.Rebind(`INSERT INTO users
		(username, email, password_hash, admin, protected_admin, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	if err := s.db.QueryRowxContext(ctx, q,
		u.Username, u.Email, u.PasswordHash, u.Admin, u.ProtectedAdmin, u.IsDeleted,
		u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByID returns a user by primary key. Soft-deleted rows are returned
// too; callers decide whether a deleted user counts as missing.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	q := s.db.Rebind("SELECT * FROM users WHERE id = ?")
	if err := s.db.GetContext(ctx, &u, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &u, nil
}

// GetUserByUsername returns a non-deleted user by exact username match.
// This is the lookup used by login and token resolution.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	q := s.db.Rebind("SELECT * FROM users WHERE username = ? AND NOT is_deleted")
	if err := s.db.GetContext(ctx, &u, q, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &u, nil
}

// FindUserByUsernameOrEmail returns any user matching either value. It does
// NOT filter soft-deleted rows: a deleted user's username and email keep
// occupying the uniqueness namespace.
func (s *Store) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	var u model.User
	q := s.db.Rebind("SELECT * FROM users WHERE username = ? OR email = ?")
	if err := s.db.GetContext(ctx, &u, q, username, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by username or email: %w", err)
	}
	return &u, nil
}

// UsernameTaken reports whether any user, deleted or not, holds the username.
func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int
	q := s.db.Rebind("SELECT COUNT(*) FROM users WHERE username = ?")
	if err := s.db.GetContext(ctx, &count, q, username); err != nil {
		return false, fmt.Errorf("count users by username: %w", err)
	}
	return count > 0, nil
}

// EmailTaken reports whether any user, deleted or not, holds the email.
func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	var count int
	q := s.db.Rebind("SELECT COUNT(*) FROM users WHERE email = ?")
	if err := s.db.GetContext(ctx, &count, q, email); err != nil {
		return false, fmt.Errorf("count users by email: %w", err)
	}
	return count > 0, nil
}

// UpdateUser persists all mutable fields of the user. UpdatedAt is set on
// the way in.
func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	u.UpdatedAt = time.Now().UTC()

	q := s.db.Rebind(`UPDATE users SET
		username = ?, email = ?, password_hash = ?, admin = ?, protected_admin = ?,
		is_deleted = ?, updated_at = ?
		WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, q,
		u.Username, u.Email, u.PasswordHash, u.Admin, u.ProtectedAdmin,
		u.IsDeleted, u.UpdatedAt, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteUser flips the is_deleted flag. The row is never physically
// removed.
func (s *Store) SoftDeleteUser(ctx context.Context, id int64) error {
	q := s.db.Rebind("UPDATE users SET is_deleted = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, true, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete user rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns all non-deleted user accounts ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := s.db.SelectContext(ctx, &users,
		"SELECT * FROM users WHERE NOT is_deleted ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetProtectedAdmin returns the single bootstrap-created admin, or
// ErrNotFound when bootstrap has not run yet.
func (s *Store) GetProtectedAdmin(ctx context.Context) (*model.User, error) {
	var u model.User
	q := s.db.Rebind("SELECT * FROM users WHERE protected_admin = ?")
	if err := s.db.GetContext(ctx, &u, q, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get protected admin: %w", err)
	}
	return &u, nil
}
