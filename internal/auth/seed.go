package auth

import (
	"context"
	"errors"
	"fmt"
)

// RootConfig describes the bootstrap admin account.
type RootConfig struct {
	Enabled  bool
	Username string
	Password string
	Email    string
}

// SeedRoot creates the root admin account on startup when enabled and not
// already present. It is idempotent; an existing account is left untouched.
// Returns true when the account was created by this call.
func (d *Directory) SeedRoot(ctx context.Context, root RootConfig) (bool, error) {
	if !root.Enabled {
		d.logger.Info("root seeding disabled")
		return false, nil
	}

	_, err := d.users.GetByUsername(ctx, root.Username)
	if err == nil {
		d.logger.Info("root user exists, skipping seed", "username", root.Username)
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("checking root user: %w", err)
	}

	digest, err := d.hasher.Hash(root.Password)
	if err != nil {
		return false, fmt.Errorf("hashing root password: %w", err)
	}

	user := &User{
		Username:     root.Username,
		Email:        root.Email,
		PasswordHash: digest,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	if err := d.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			// Another instance seeded concurrently.
			return false, nil
		}
		return false, fmt.Errorf("creating root user: %w", err)
	}

	d.logger.Warn("root user created",
		"username", root.Username,
		"action_required", "change the configured root password",
	)
	return true, nil
}
