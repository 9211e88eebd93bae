package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/leitura-auth/internal/infrastructure/database"
)

// recentLoginWindow bounds UserStats.RecentLogins.
const recentLoginWindow = 24 * time.Hour

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user *User) error
	UpdateLastLogin(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*UserStats, error)
}

// SQLUserRepository implements UserRepository on database/sql.
type SQLUserRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewUserRepository creates a new SQL-backed user repository.
// A nil clock means time.Now.
func NewUserRepository(db *database.DB, now func() time.Time) *SQLUserRepository {
	if now == nil {
		now = time.Now
	}
	return &SQLUserRepository{db: db, now: now}
}

const userColumns = "id, username, email, password_hash, role, is_active, created_at, updated_at, last_login"

// Create inserts a new user account. The ID is generated if empty.
// A clashing username returns ErrDuplicateUsername.
func (r *SQLUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = RoleUser
	}

	now := formatTime(r.now())
	user.CreatedAt = parseTime(now)
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash,
		string(user.Role), boolToInt(user.IsActive), now, now,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their unique ID.
func (r *SQLUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetByUsername retrieves a user by their username.
func (r *SQLUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

// List returns all users ordered by creation date.
func (r *SQLUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at ASC, username ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	return users, nil
}

// Update writes every mutable field (username, email, password hash, role,
// is_active) and bumps updated_at.
func (r *SQLUserRepository) Update(ctx context.Context, user *User) error {
	now := formatTime(r.now())
	user.UpdatedAt = parseTime(now)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, password_hash = ?, role = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		user.Username, user.Email, user.PasswordHash, string(user.Role),
		boolToInt(user.IsActive), now, user.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("updating user: %w", err)
	}

	return requireAffected(result, "updating user")
}

// UpdateLastLogin records a successful login at the current time.
func (r *SQLUserRepository) UpdateLastLogin(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET last_login = ? WHERE id = ?", formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return requireAffected(result, "updating last login")
}

// Delete removes a user account and all of its sessions in one transaction.
func (r *SQLUserRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithTx(ctx, func(q database.Querier) error {
		if _, err := deleteSessionsForUser(ctx, q, id); err != nil {
			return err
		}

		result, err := q.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting user: %w", err)
		}
		return requireAffected(result, "deleting user")
	})
}

// Count returns the total number of user accounts.
func (r *SQLUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// Stats returns population counts plus the number of logins in the last 24h.
func (r *SQLUserRepository) Stats(ctx context.Context) (*UserStats, error) {
	stats := &UserStats{UsersByRole: map[string]int{}}

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0) FROM users`,
	).Scan(&stats.TotalUsers, &stats.ActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	stats.InactiveUsers = stats.TotalUsers - stats.ActiveUsers

	rows, err := r.db.QueryContext(ctx, "SELECT role, COUNT(*) FROM users GROUP BY role")
	if err != nil {
		return nil, fmt.Errorf("counting users by role: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scanning role count: %w", err)
		}
		stats.UsersByRole[role] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role counts: %w", err)
	}

	since := formatTime(r.now().Add(-recentLoginWindow))
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE last_login >= ?", since,
	).Scan(&stats.RecentLogins); err != nil {
		return nil, fmt.Errorf("counting recent logins: %w", err)
	}

	return stats, nil
}

// getUser executes a query and scans a single user result.
func (r *SQLUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	return scanUserFrom(r.db.QueryRowContext(ctx, query, args...))
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanUserFrom scans a user from any scanner (Row or Rows).
func scanUserFrom(s scanner) (*User, error) {
	var u User
	var role string
	var isActive int
	var createdAt, updatedAt string
	var lastLogin sql.NullString

	err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&role, &isActive, &createdAt, &updatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.IsActive = isActive != 0
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	if lastLogin.Valid {
		t := parseTime(lastLogin.String)
		u.LastLogin = &t
	}

	return &u, nil
}

// Helper functions.

// requireAffected maps a zero-row write to ErrNotFound.
func requireAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
