package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/projectdesk/projectdesk/internal/model"
)

// CreateProject inserts a new project. The ID, CreatedAt, and UpdatedAt
// fields are populated after a successful insert. Owner validation is the
// caller's job; the foreign key is the last line of defense.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	q := s.db.Rebind(`INSERT INTO projects
		(name, data, user_id, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`)

	if err := s.db.QueryRowxContext(ctx, q,
		p.Name, p.Data, p.UserID, p.IsDeleted, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProjectByID returns a project by primary key, including soft-deleted
// rows; callers decide whether a deleted project counts as missing.
func (s *Store) GetProjectByID(ctx context.Context, id int64) (*model.Project, error) {
	var p model.Project
	q := s.db.Rebind("SELECT * FROM projects WHERE id = ?")
	if err := s.db.GetContext(ctx, &p, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project by id: %w", err)
	}
	return &p, nil
}

// UpdateProject persists all mutable fields of the project.
func (s *Store) UpdateProject(ctx context.Context, p *model.Project) error {
	p.UpdatedAt = time.Now().UTC()

	q := s.db.Rebind(`UPDATE projects SET
		name = ?, data = ?, user_id = ?, is_deleted = ?, updated_at = ?
		WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, q,
		p.Name, p.Data, p.UserID, p.IsDeleted, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteProject flips the is_deleted flag.
func (s *Store) SoftDeleteProject(ctx context.Context, id int64) error {
	q := s.db.Rebind("UPDATE projects SET is_deleted = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, true, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete project: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete project rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProjects returns non-deleted projects ordered by id. A non-nil ownerID
// restricts the result to that user's projects; nil means all owners.
func (s *Store) ListProjects(ctx context.Context, ownerID *int64) ([]model.Project, error) {
	projects := []model.Project{}

	if ownerID != nil {
		q := s.db.Rebind("SELECT * FROM projects WHERE NOT is_deleted AND user_id = ? ORDER BY id")
		if err := s.db.SelectContext(ctx, &projects, q, *ownerID); err != nil {
			return nil, fmt.Errorf("list projects by owner: %w", err)
		}
		return projects, nil
	}

	if err := s.db.SelectContext(ctx, &projects,
		"SELECT * FROM projects WHERE NOT is_deleted ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}
