package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/leitura-auth/internal/infrastructure/logging"
)

// SessionConfig holds the session lifetime settings.
type SessionConfig struct {
	// AccessTTL is how long a session stays live after creation or refresh.
	AccessTTL time.Duration
}

// ManagerOption customises a SessionManager.
type ManagerOption func(*SessionManager)

// WithClock sets the time source used for expiry computation.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithEventPublisher attaches a lifecycle event sink.
func WithEventPublisher(p EventPublisher) ManagerOption {
	return func(m *SessionManager) {
		m.events = p
	}
}

// withTokenSource replaces token generation. Tests only.
func withTokenSource(gen func() (string, error)) ManagerOption {
	return func(m *SessionManager) {
		m.newToken = gen
	}
}

// SessionManager owns the session lifecycle: issuance, validation,
// rotation, revocation and purge. It holds no mutable state of its own.
type SessionManager struct {
	store    SessionStore
	cfg      SessionConfig
	logger   *logging.Logger
	now      func() time.Time
	events   EventPublisher
	newToken func() (string, error)
}

// NewSessionManager creates a manager on top of store.
func NewSessionManager(store SessionStore, cfg SessionConfig, logger *logging.Logger, opts ...ManagerOption) *SessionManager {
	if logger == nil {
		logger = logging.Discard()
	}
	m := &SessionManager{
		store:    store,
		cfg:      cfg,
		logger:   logger.With("component", "sessions"),
		now:      time.Now,
		newToken: GenerateToken,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession opens a new session for user with fresh random tokens.
func (m *SessionManager) CreateSession(ctx context.Context, user *User, device DeviceInfo) (*Session, error) {
	sessionToken, err := m.newToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
	}
	refreshToken, err := m.newToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
	}

	sess, err := m.store.Create(ctx, &Session{
		UserID:       user.ID,
		SessionToken: sessionToken,
		RefreshToken: refreshToken,
		DeviceInfo:   device.Device,
		IPAddress:    device.IP,
		UserAgent:    device.UserAgent,
		ExpiresAt:    m.now().Add(m.cfg.AccessTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
	}

	m.logger.Debug("session created", "user_id", user.ID, "session_id", sess.ID)
	m.publish(ctx, Event{Kind: EventSessionCreated, UserID: user.ID, SessionID: sess.ID, Device: device.Device})

	return sess, nil
}

// ValidateSession returns the live session for token, or nil when none.
// A hit records activity.
func (m *SessionManager) ValidateSession(ctx context.Context, token string) (*Session, error) {
	sess, err := m.store.FindBySessionToken(ctx, token)
	if err != nil {
		return nil, opFailed("validate session", err)
	}
	if sess == nil {
		return nil, nil
	}

	touched, err := m.store.TouchActivity(ctx, sess.ID)
	if err != nil {
		return nil, opFailed("validate session", err)
	}
	if !touched.IsLive(m.now()) {
		// Revoked, expired or purged between lookup and touch.
		return nil, nil
	}
	return touched, nil
}

// PendingRefresh returns the live session holding refreshToken without
// rotating it, or nil when none. Callers check ownership here before
// calling RefreshSession.
func (m *SessionManager) PendingRefresh(ctx context.Context, refreshToken string) (*Session, error) {
	sess, err := m.store.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, opFailed("refresh session", err)
	}
	return sess, nil
}

// RefreshSession replaces both tokens of the live session holding
// refreshToken and extends its expiry. Returns nil when nothing matches,
// including when a concurrent refresh consumed the token first.
func (m *SessionManager) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	sess, err := m.store.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, opFailed("refresh session", err)
	}
	if sess == nil {
		return nil, nil
	}

	newSession, err := m.newToken()
	if err != nil {
		return nil, opFailed("refresh session", err)
	}
	newRefresh, err := m.newToken()
	if err != nil {
		return nil, opFailed("refresh session", err)
	}

	rotated, err := m.store.RotateTokens(ctx, sess.ID, refreshToken, newSession, newRefresh, m.now().Add(m.cfg.AccessTTL))
	if err != nil {
		return nil, opFailed("refresh session", err)
	}
	if rotated == nil {
		return nil, nil
	}

	m.logger.Debug("session refreshed", "user_id", rotated.UserID, "session_id", rotated.ID)
	m.publish(ctx, Event{Kind: EventSessionRefreshed, UserID: rotated.UserID, SessionID: rotated.ID})

	return rotated, nil
}

// LogoutSession revokes the session holding token. Reports whether an
// active session was revoked.
func (m *SessionManager) LogoutSession(ctx context.Context, token string) (bool, error) {
	revoked, err := m.store.RevokeSession(ctx, token)
	if err != nil {
		return false, opFailed("logout session", err)
	}
	if revoked == nil {
		return false, nil
	}

	m.logger.Debug("session revoked", "user_id", revoked.UserID, "session_id", revoked.ID)
	m.publish(ctx, Event{Kind: EventSessionRevoked, UserID: revoked.UserID, SessionID: revoked.ID, Device: revoked.DeviceInfo})
	return true, nil
}

// LogoutAll revokes every active session of userID and returns the count.
func (m *SessionManager) LogoutAll(ctx context.Context, userID string) (int, error) {
	n, err := m.store.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, opFailed("logout all sessions", err)
	}

	m.logger.Info("user sessions revoked", "user_id", userID, "count", n)
	if n > 0 {
		m.publish(ctx, Event{Kind: EventSessionRevokedAll, UserID: userID, Count: n})
	}
	return n, nil
}

// CleanupExpired purges expired and long-revoked sessions.
func (m *SessionManager) CleanupExpired(ctx context.Context) (int, error) {
	n, err := m.store.PurgeExpired(ctx)
	if err != nil {
		return 0, opFailed("cleanup expired sessions", err)
	}
	if n > 0 {
		m.publish(ctx, Event{Kind: EventSessionPurged, Count: n})
	}
	return n, nil
}

// ActiveSessions lists the live sessions of userID, most recent first.
func (m *SessionManager) ActiveSessions(ctx context.Context, userID string) ([]Session, error) {
	sessions, err := m.store.ActiveSessionsForUser(ctx, userID)
	if err != nil {
		return nil, opFailed("list active sessions", err)
	}
	return sessions, nil
}

// Stats returns aggregate session statistics.
func (m *SessionManager) Stats(ctx context.Context) (*SessionStats, error) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return nil, opFailed("session stats", err)
	}
	return stats, nil
}

// RunCleanup purges on every tick until ctx is cancelled. A non-positive
// interval disables the loop. After each run, publishers that record
// statistics receive a snapshot.
func (m *SessionManager) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		m.logger.Info("session cleanup loop disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanupOnce(ctx)
		}
	}
}

func (m *SessionManager) cleanupOnce(ctx context.Context) {
	n, err := m.CleanupExpired(ctx)
	if err != nil {
		m.logger.Error("session cleanup failed", "error", err)
		return
	}
	if n > 0 {
		m.logger.Info("expired sessions purged", "count", n)
	}

	sp, ok := m.events.(StatsPublisher)
	if !ok {
		return
	}
	stats, err := m.Stats(ctx)
	if err != nil {
		m.logger.Warn("session stats snapshot failed", "error", err)
		return
	}
	if err := sp.PublishStats(ctx, stats, m.now()); err != nil {
		m.logger.Warn("publishing session stats failed", "error", err)
	}
}

func (m *SessionManager) publish(ctx context.Context, e Event) {
	if m.events == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now().UTC()
	}
	if err := m.events.Publish(ctx, e); err != nil {
		m.logger.Warn("publishing session event failed", "kind", string(e.Kind), "error", err)
	}
}

// opFailed wraps a store error as ErrSessionOperationFailed.
func opFailed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSessionOperationFailed, op, err)
}
