package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/leitura-auth/internal/infrastructure/logging"
)

// DirectoryConfig holds account management settings.
type DirectoryConfig struct {
	// RootUsername names the protected account that cannot be deactivated
	// or deleted.
	RootUsername string
}

// Directory is the user management service. Every operation that acts on
// behalf of a caller checks the authorisation policy before touching data.
type Directory struct {
	users    UserRepository
	sessions *SessionManager
	hasher   PasswordHasher
	cfg      DirectoryConfig
	logger   *logging.Logger

	dummyOnce   sync.Once
	dummyDigest string
}

// NewDirectory creates a directory. A nil hasher means DefaultHasher.
func NewDirectory(
	users UserRepository, sessions *SessionManager, hasher PasswordHasher,
	cfg DirectoryConfig, logger *logging.Logger,
) *Directory {
	if hasher == nil {
		hasher = DefaultHasher{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Directory{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger.With("component", "directory"),
	}
}

// Authenticate verifies a username and password. Unknown users, wrong
// passwords and inactive accounts all yield ErrInvalidCredentials.
// On success last_login is updated.
func (d *Directory) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := d.users.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		d.equaliseTiming(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storeFailed("authenticate", err)
	}

	ok, err := d.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		d.logger.Warn("stored password digest unreadable", "user_id", user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	if err := d.users.UpdateLastLogin(ctx, user.ID); err != nil {
		return nil, storeFailed("update last login", err)
	}
	d.upgradeDigest(ctx, user, password)
	return user, nil
}

// upgradeDigest replaces a legacy or under-strength digest once the
// plaintext is known. Failures are logged and the login still succeeds.
func (d *Directory) upgradeDigest(ctx context.Context, user *User, password string) {
	rh, ok := d.hasher.(Rehasher)
	if !ok || !rh.NeedsRehash(user.PasswordHash) {
		return
	}

	digest, err := d.hasher.Hash(password)
	if err != nil {
		d.logger.Warn("rehashing password failed", "user_id", user.ID, "error", err)
		return
	}
	previous := user.PasswordHash
	user.PasswordHash = digest
	if err := d.users.Update(ctx, user); err != nil {
		user.PasswordHash = previous
		d.logger.Warn("storing upgraded password digest failed", "user_id", user.ID, "error", err)
		return
	}
	d.logger.Info("password digest upgraded", "user_id", user.ID)
}

// equaliseTiming spends one hash verification so unknown usernames take as
// long as wrong passwords.
func (d *Directory) equaliseTiming(password string) {
	d.dummyOnce.Do(func() {
		digest, err := d.hasher.Hash("leitura-timing-equaliser")
		if err == nil {
			d.dummyDigest = digest
		}
	})
	if d.dummyDigest != "" {
		_, _ = d.hasher.Verify(password, d.dummyDigest) //nolint:errcheck // result deliberately discarded
	}
}

// CreateUser registers a new account. current may be nil for open
// registration; only admins may create non-user roles or active accounts.
func (d *Directory) CreateUser(ctx context.Context, in UserInput, current *User) (*User, error) {
	if !IsValidUsername(in.Username) {
		return nil, fmt.Errorf("%w: username must be 1-64 characters of letters, digits, '.', '_' or '-'", ErrInvalidInput)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if !IsValidUserRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	isAdmin := current.IsAdmin()
	if role != RoleUser && !isAdmin {
		return nil, ErrForbidden
	}

	active := false
	if in.IsActive != nil && isAdmin {
		active = *in.IsActive
	}

	if _, err := d.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, ErrNotFound) {
		return nil, storeFailed("create user", err)
	}

	digest, err := d.hasher.Hash(in.Password)
	if err != nil {
		return nil, storeFailed("hash password", err)
	}

	user := &User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: digest,
		Role:         role,
		IsActive:     active,
	}
	if err := d.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			return nil, ErrDuplicateUsername
		}
		return nil, storeFailed("create user", err)
	}

	d.logger.Info("user created", "user_id", user.ID, "username", user.Username, "role", string(user.Role))
	return user, nil
}

// UpdateUser changes username, email, password or role of id. Empty fields
// keep their current value. Changing a role requires admin rights, and a
// new password revokes the account's sessions.
func (d *Directory) UpdateUser(ctx context.Context, id string, in UserInput, current *User) (*User, error) {
	if err := RequireSelfOrAdmin(current, id); err != nil {
		return nil, err
	}

	user, err := d.getOr404(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Username != "" && in.Username != user.Username {
		if !IsValidUsername(in.Username) {
			return nil, fmt.Errorf("%w: invalid username", ErrInvalidInput)
		}
		existing, err := d.users.GetByUsername(ctx, in.Username)
		switch {
		case err == nil && existing.ID != user.ID:
			return nil, ErrDuplicateUsername
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, storeFailed("update user", err)
		}
		if user.Username == d.cfg.RootUsername {
			return nil, ErrForbidden
		}
		user.Username = in.Username
	}

	if in.Email != "" {
		user.Email = in.Email
	}

	if in.Role != "" && in.Role != user.Role {
		if err := RequirePermission(current, PermRoleAssign); err != nil {
			return nil, err
		}
		if !IsValidUserRole(in.Role) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
		}
		if user.Username == d.cfg.RootUsername {
			return nil, ErrForbidden
		}
		user.Role = in.Role
	}

	passwordChanged := false
	if in.Password != "" {
		digest, err := d.hasher.Hash(in.Password)
		if err != nil {
			return nil, storeFailed("hash password", err)
		}
		user.PasswordHash = digest
		passwordChanged = true
	}

	if err := d.users.Update(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateUsername) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, storeFailed("update user", err)
	}

	if passwordChanged {
		if _, err := d.sessions.LogoutAll(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	d.logger.Info("user updated", "user_id", user.ID, "by", current.ID)
	return user, nil
}

// ToggleActive flips is_active on id. Admin only; the root account is
// protected. Deactivation revokes the account's sessions.
func (d *Directory) ToggleActive(ctx context.Context, id string, current *User) (*User, error) {
	if err := RequirePermission(current, PermUserActivate); err != nil {
		return nil, err
	}

	user, err := d.getOr404(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Username == d.cfg.RootUsername {
		return nil, ErrForbidden
	}

	user.IsActive = !user.IsActive
	if err := d.users.Update(ctx, user); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, storeFailed("toggle active", err)
	}

	if !user.IsActive {
		if _, err := d.sessions.LogoutAll(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	d.logger.Info("user activation changed", "user_id", user.ID, "is_active", user.IsActive, "by", current.ID)
	return user, nil
}

// DeleteUser removes id and all of its sessions. The target must exist
// before the policy is evaluated; the root account is protected.
func (d *Directory) DeleteUser(ctx context.Context, id string, current *User) error {
	user, err := d.getOr404(ctx, id)
	if err != nil {
		return err
	}
	if err := RequireSelfOrAdmin(current, id); err != nil {
		return err
	}
	if user.Username == d.cfg.RootUsername {
		return ErrForbidden
	}

	if err := d.users.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return storeFailed("delete user", err)
	}

	d.logger.Info("user deleted", "user_id", id, "by", current.ID)
	return nil
}

// ListUsers returns every account. Admin only.
func (d *Directory) ListUsers(ctx context.Context, current *User) ([]User, error) {
	if err := RequireAdmin(current); err != nil {
		return nil, err
	}
	users, err := d.users.List(ctx)
	if err != nil {
		return nil, storeFailed("list users", err)
	}
	return users, nil
}

// GetUser returns id to its owner or an admin.
func (d *Directory) GetUser(ctx context.Context, id string, current *User) (*User, error) {
	if err := RequireSelfOrAdmin(current, id); err != nil {
		return nil, err
	}
	return d.getOr404(ctx, id)
}

// Lookup resolves a username without a policy check. Used by the request
// authenticator to load the caller.
func (d *Directory) Lookup(ctx context.Context, username string) (*User, error) {
	user, err := d.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, storeFailed("lookup user", err)
	}
	return user, nil
}

// LookupID resolves an account by ID without a policy check. Used when
// rotating tokens, where the refresh token names the owner by ID.
func (d *Directory) LookupID(ctx context.Context, id string) (*User, error) {
	return d.getOr404(ctx, id)
}

// Stats merges user population and session statistics. Admin only.
func (d *Directory) Stats(ctx context.Context, current *User) (*DirectoryStats, error) {
	if err := RequirePermission(current, PermStatsRead); err != nil {
		return nil, err
	}

	userStats, err := d.users.Stats(ctx)
	if err != nil {
		return nil, storeFailed("user stats", err)
	}
	sessionStats, err := d.sessions.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &DirectoryStats{UserStats: *userStats, SessionStats: *sessionStats}, nil
}

func (d *Directory) getOr404(ctx context.Context, id string) (*User, error) {
	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, storeFailed("get user", err)
	}
	return user, nil
}

// storeFailed wraps a repository error as ErrStoreFailure.
func storeFailed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}
