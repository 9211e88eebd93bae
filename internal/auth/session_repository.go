package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/leitura-auth/internal/infrastructure/database"
)

// logoutRetention is how long revoked sessions are kept before purge.
const logoutRetention = 7 * 24 * time.Hour

// SessionStore defines the interface for session persistence.
//
// Lookups by token return only live sessions (active and unexpired) and
// report absence as (nil, nil) rather than an error.
type SessionStore interface {
	Create(ctx context.Context, s *Session) (*Session, error)
	FindBySessionToken(ctx context.Context, token string) (*Session, error)
	FindByRefreshToken(ctx context.Context, token string) (*Session, error)
	TouchActivity(ctx context.Context, id string) (*Session, error)
	Revoke(ctx context.Context, sessionToken string) (bool, error)
	RevokeSession(ctx context.Context, sessionToken string) (*Session, error)
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	PurgeExpired(ctx context.Context) (int, error)
	ActiveSessionsForUser(ctx context.Context, userID string) ([]Session, error)
	Stats(ctx context.Context) (*SessionStats, error)
	RotateTokens(ctx context.Context, id, oldRefresh, newSession, newRefresh string, expiresAt time.Time) (*Session, error)
	DeleteForUser(ctx context.Context, userID string) (int, error)
}

// SQLSessionStore implements SessionStore on database/sql.
type SQLSessionStore struct {
	db  *database.DB
	now func() time.Time
	loc *time.Location
}

// NewSessionStore creates a SQL-backed session store. loc sets where
// "today" starts for Stats; nil means time.Local. A nil clock means time.Now.
func NewSessionStore(db *database.DB, now func() time.Time, loc *time.Location) *SQLSessionStore {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &SQLSessionStore{db: db, now: now, loc: loc}
}

const sessionColumns = `id, user_id, session_token, refresh_token, device_info, ip_address, user_agent,
	login_at, last_activity, logout_at, expires_at, is_active`

// liveFilter restricts a query to active, unexpired rows. Takes one argument: now.
const liveFilter = "is_active = 1 AND expires_at > ?"

// touchExpr keeps last_activity monotonic. Takes two arguments: now, now.
const touchExpr = "CASE WHEN last_activity > ? THEN last_activity ELSE ? END"

// Create inserts a session. ID, LoginAt and LastActivity are assigned here
// and the row starts active.
func (r *SQLSessionStore) Create(ctx context.Context, s *Session) (*Session, error) {
	out := *s
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	now := formatTime(r.now())
	out.LoginAt = parseTime(now)
	out.LastActivity = out.LoginAt
	out.LogoutAt = nil
	out.IsActive = true
	out.ExpiresAt = out.ExpiresAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.UserID, out.SessionToken, nullString(out.RefreshToken),
		nullString(out.DeviceInfo), nullString(out.IPAddress), nullString(out.UserAgent),
		now, now, nil, formatTime(out.ExpiresAt), 1,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return &out, nil
}

// FindBySessionToken returns the live session holding token, or nil.
func (r *SQLSessionStore) FindBySessionToken(ctx context.Context, token string) (*Session, error) {
	return r.findOne(ctx,
		"SELECT "+sessionColumns+" FROM user_sessions WHERE session_token = ? AND "+liveFilter,
		token, formatTime(r.now()))
}

// FindByRefreshToken returns the live session holding refresh token, or nil.
func (r *SQLSessionStore) FindByRefreshToken(ctx context.Context, token string) (*Session, error) {
	return r.findOne(ctx,
		"SELECT "+sessionColumns+" FROM user_sessions WHERE refresh_token = ? AND "+liveFilter,
		token, formatTime(r.now()))
}

// TouchActivity moves last_activity forward to now and returns the row.
// A session revoked or expired before the touch lands yields nil.
func (r *SQLSessionStore) TouchActivity(ctx context.Context, id string) (*Session, error) {
	at := r.now()
	now := formatTime(at)

	result, err := r.db.ExecContext(ctx,
		"UPDATE user_sessions SET last_activity = "+touchExpr+" WHERE id = ? AND "+liveFilter,
		now, now, id, now)
	if err != nil {
		return nil, fmt.Errorf("touching session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("touching session: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	s, err := r.findOne(ctx, "SELECT "+sessionColumns+" FROM user_sessions WHERE id = ?", id)
	if err != nil || s == nil || !s.IsLive(at) {
		return nil, err
	}
	return s, nil
}

// Revoke deactivates the session with sessionToken. Reports false when no
// active row matched, so logout_at is only ever written once.
func (r *SQLSessionStore) Revoke(ctx context.Context, sessionToken string) (bool, error) {
	s, err := r.RevokeSession(ctx, sessionToken)
	return s != nil, err
}

// RevokeSession is Revoke returning the deactivated row, or nil when no
// active row matched.
func (r *SQLSessionStore) RevokeSession(ctx context.Context, sessionToken string) (*Session, error) {
	s, err := scanSessionFrom(r.db.QueryRowContext(ctx,
		"UPDATE user_sessions SET is_active = 0, logout_at = ? WHERE session_token = ? AND is_active = 1 RETURNING "+sessionColumns,
		formatTime(r.now()), sessionToken))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("revoking session: %w", err)
	}
	return s, nil
}

// RevokeAllForUser deactivates every active session of userID.
func (r *SQLSessionStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE user_sessions SET is_active = 0, logout_at = ? WHERE user_id = ? AND is_active = 1",
		formatTime(r.now()), userID)
	if err != nil {
		return 0, fmt.Errorf("revoking user sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoking user sessions: %w", err)
	}
	return int(n), nil
}

// PurgeExpired deletes expired sessions and sessions revoked more than
// seven days ago. Returns the number of rows removed.
func (r *SQLSessionStore) PurgeExpired(ctx context.Context) (int, error) {
	now := r.now()

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_sessions
		 WHERE expires_at < ? OR (is_active = 0 AND logout_at IS NOT NULL AND logout_at < ?)`,
		formatTime(now), formatTime(now.Add(-logoutRetention)))
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return int(n), nil
}

// ActiveSessionsForUser lists live sessions, most recently active first.
func (r *SQLSessionStore) ActiveSessionsForUser(ctx context.Context, userID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM user_sessions WHERE user_id = ? AND "+liveFilter+
			" ORDER BY last_activity DESC, id ASC",
		userID, formatTime(r.now()))
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSessionFrom(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// Stats summarises live sessions and today's activity.
func (r *SQLSessionStore) Stats(ctx context.Context) (*SessionStats, error) {
	now := r.now()
	local := now.In(r.loc)
	midnight := formatTime(time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc))

	stats := &SessionStats{SessionsByDevice: map[string]int{}}

	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_sessions WHERE "+liveFilter, formatTime(now),
	).Scan(&stats.ActiveCount); err != nil {
		return nil, fmt.Errorf("counting active sessions: %w", err)
	}

	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT user_id) FROM user_sessions WHERE login_at >= ?", midnight,
	).Scan(&stats.SessionsCreatedToday, &stats.DistinctUsersToday); err != nil {
		return nil, fmt.Errorf("counting today's sessions: %w", err)
	}

	avg, err := r.averageDuration(ctx, midnight)
	if err != nil {
		return nil, err
	}
	stats.AvgSessionDurationMinutes = avg

	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(device_info, '`+unknownDevice+`'), COUNT(*) FROM user_sessions
		 WHERE login_at >= ? GROUP BY COALESCE(device_info, '`+unknownDevice+`')`,
		midnight)
	if err != nil {
		return nil, fmt.Errorf("counting sessions by device: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var device string
		var n int
		if err := rows.Scan(&device, &n); err != nil {
			return nil, fmt.Errorf("scanning device count: %w", err)
		}
		stats.SessionsByDevice[device] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device counts: %w", err)
	}

	return stats, nil
}

// averageDuration returns the mean of last_activity - login_at in minutes,
// over sessions logged out and started since midnight, rounded to 2dp.
func (r *SQLSessionStore) averageDuration(ctx context.Context, midnight string) (float64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT login_at, last_activity FROM user_sessions WHERE logout_at IS NOT NULL AND login_at >= ?",
		midnight)
	if err != nil {
		return 0, fmt.Errorf("reading session durations: %w", err)
	}
	defer rows.Close()

	var total float64
	var count int
	for rows.Next() {
		var loginAt, lastActivity string
		if err := rows.Scan(&loginAt, &lastActivity); err != nil {
			return 0, fmt.Errorf("scanning session duration: %w", err)
		}
		total += parseTime(lastActivity).Sub(parseTime(loginAt)).Minutes()
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating session durations: %w", err)
	}

	if count == 0 {
		return 0, nil
	}
	return math.Round(total/float64(count)*100) / 100, nil //nolint:mnd // two decimal places
}

// RotateTokens swaps both tokens of a live session in one transaction.
// The UPDATE is conditioned on oldRefresh, so of two concurrent rotations
// with the same token only one matches. Returns (nil, nil) when nothing
// matched.
func (r *SQLSessionStore) RotateTokens(
	ctx context.Context, id, oldRefresh, newSession, newRefresh string, expiresAt time.Time,
) (*Session, error) {
	var rotated *Session
	now := formatTime(r.now())

	err := r.db.WithTx(ctx, func(q database.Querier) error {
		result, err := q.ExecContext(ctx,
			`UPDATE user_sessions
			 SET session_token = ?, refresh_token = ?, expires_at = ?, last_activity = `+touchExpr+`
			 WHERE id = ? AND refresh_token = ? AND `+liveFilter,
			newSession, newRefresh, formatTime(expiresAt), now, now,
			id, oldRefresh, now)
		if err != nil {
			return fmt.Errorf("rotating session tokens: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rotating session tokens: %w", err)
		}
		if n == 0 {
			return nil
		}

		rotated, err = scanSessionFrom(q.QueryRowContext(ctx,
			"SELECT "+sessionColumns+" FROM user_sessions WHERE id = ?", id))
		if err != nil {
			return fmt.Errorf("reading rotated session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rotated, nil
}

// DeleteForUser physically removes every session of userID.
func (r *SQLSessionStore) DeleteForUser(ctx context.Context, userID string) (int, error) {
	return deleteSessionsForUser(ctx, r.db, userID)
}

func deleteSessionsForUser(ctx context.Context, q database.Querier, userID string) (int, error) {
	result, err := q.ExecContext(ctx, "DELETE FROM user_sessions WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("deleting user sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting user sessions: %w", err)
	}
	return int(n), nil
}

// findOne runs a single-row session query, mapping no rows to (nil, nil).
func (r *SQLSessionStore) findOne(ctx context.Context, query string, args ...any) (*Session, error) {
	s, err := scanSessionFrom(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding session: %w", err)
	}
	return s, nil
}

// scanSessionFrom scans a session from any scanner (Row or Rows).
// sql.ErrNoRows is returned unwrapped.
func scanSessionFrom(s scanner) (*Session, error) {
	var sess Session
	var refresh, device, ip, agent, logoutAt sql.NullString
	var loginAt, lastActivity, expiresAt string
	var isActive int

	err := s.Scan(&sess.ID, &sess.UserID, &sess.SessionToken, &refresh,
		&device, &ip, &agent, &loginAt, &lastActivity, &logoutAt, &expiresAt, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.RefreshToken = refresh.String
	sess.DeviceInfo = device.String
	sess.IPAddress = ip.String
	sess.UserAgent = agent.String
	sess.LoginAt = parseTime(loginAt)
	sess.LastActivity = parseTime(lastActivity)
	sess.ExpiresAt = parseTime(expiresAt)
	sess.IsActive = isActive != 0
	if logoutAt.Valid {
		t := parseTime(logoutAt.String)
		sess.LogoutAt = &t
	}

	return &sess, nil
}
