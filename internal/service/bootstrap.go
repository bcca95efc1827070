package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/projectdesk/projectdesk/internal/model"
	"github.com/projectdesk/projectdesk/internal/store"
)

// bootstrapUsername is the fixed username of the protected admin account.
const bootstrapUsername = "admin"

// generatedPasswordFloor is the minimum length of an auto-generated
// bootstrap password, even when the configured minimum is lower.
const generatedPasswordFloor = 12

// Bootstrap guarantees exactly one protected admin account exists. It runs
// once at startup, before the server accepts traffic; any error is fatal to
// the process and leaves no partial state behind.
//
// When no admin password is configured, one is generated and logged once.
// That log line is the only place the plaintext ever surfaces, so operators
// must capture it. A configured password shorter than the minimum length
// aborts startup rather than quietly deploying a weak credential.
func (s *AuthService) Bootstrap(ctx context.Context, logger *slog.Logger) error {
	_, err := s.store.GetProtectedAdmin(ctx)
	if err == nil {
		return nil // already bootstrapped
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check for protected admin: %w", err)
	}

	password := strings.TrimSpace(s.cfg.AdminPassword)
	generated := false
	if password == "" {
		length := s.cfg.MinPasswordLength
		if length < generatedPasswordFloor {
			length = generatedPasswordFloor
		}
		password, err = GeneratePassword(length)
		if err != nil {
			return err
		}
		generated = true
	}

	if len(password) < s.cfg.MinPasswordLength {
		return fmt.Errorf("configured admin password must be at least %d characters",
			s.cfg.MinPasswordLength)
	}

	email := strings.TrimSpace(s.cfg.AdminEmail)
	if email == "" {
		email = "admin@example.com"
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return err
	}

	admin := &model.User{
		Username:       bootstrapUsername,
		Email:          email,
		PasswordHash:   hash,
		Admin:          true,
		ProtectedAdmin: true,
		IsDeleted:      false,
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	if generated {
		logger.Warn("generated bootstrap admin password; it cannot be recovered later",
			"username", bootstrapUsername,
			"password", password,
		)
	} else {
		logger.Info("created bootstrap admin account", "username", bootstrapUsername)
	}
	return nil
}
