package auth

import (
	"context"
	"testing"
	"time"
)

func TestSessionStore_CreateAndFind(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedTestUser(t, "alice", RoleUser)

	sess, err := env.store.Create(ctx, &Session{
		UserID:       user.ID,
		SessionToken: "st-1",
		RefreshToken: "rt-1",
		DeviceInfo:   "laptop",
		IPAddress:    "192.0.2.10",
		UserAgent:    "curl/8.0",
		ExpiresAt:    env.clock.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.ID == "" {
		t.Fatal("Create() should assign an ID")
	}
	if !sess.IsActive || sess.LogoutAt != nil {
		t.Errorf("new session should be active with no logout, got %+v", sess)
	}
	if !sess.LoginAt.Equal(env.clock.Now()) || !sess.LastActivity.Equal(sess.LoginAt) {
		t.Errorf("LoginAt = %v LastActivity = %v, want both %v", sess.LoginAt, sess.LastActivity, env.clock.Now())
	}

	got, err := env.store.FindBySessionToken(ctx, "st-1")
	if err != nil {
		t.Fatalf("FindBySessionToken() error = %v", err)
	}
	if got == nil || got.ID != sess.ID {
		t.Fatalf("FindBySessionToken() = %+v, want session %s", got, sess.ID)
	}
	if got.DeviceInfo != "laptop" || got.IPAddress != "192.0.2.10" || got.UserAgent != "curl/8.0" {
		t.Errorf("device fields = %q %q %q", got.DeviceInfo, got.IPAddress, got.UserAgent)
	}

	byRefresh, err := env.store.FindByRefreshToken(ctx, "rt-1")
	if err != nil {
		t.Fatalf("FindByRefreshToken() error = %v", err)
	}
	if byRefresh == nil || byRefresh.ID != sess.ID {
		t.Errorf("FindByRefreshToken() = %+v, want session %s", byRefresh, sess.ID)
	}
}

func TestSessionStore_FindMissing(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.store.FindBySessionToken(context.Background(), "nope")
	if err != nil {
		t.Fatalf("FindBySessionToken() error = %v", err)
	}
	if got != nil {
		t.Errorf("FindBySessionToken() = %+v, want nil", got)
	}
}

func TestSessionStore_FindSkipsExpiredAndRevoked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedTestUser(t, "alice", RoleUser)

	revoked := env.seedSession(t, user, "phone")
	if ok, err := env.store.Revoke(ctx, revoked.SessionToken); err != nil || !ok {
		t.Fatalf("Revoke() = %v, %v; want true, nil", ok, err)
	}
	if got, _ := env.store.FindBySessionToken(ctx, revoked.SessionToken); got != nil {
		t.Error("revoked session should not be found")
	}
	if got, _ := env.store.FindByRefreshToken(ctx, revoked.RefreshToken); got != nil {
		t.Error("revoked session should not be found by refresh token")
	}

	expiring := env.seedSession(t, user, "laptop")
	env.clock.Advance(testAccessTTL + time.Second)
	if got, _ := env.store.FindBySessionToken(ctx, expiring.SessionToken); got != nil {
		t.Error("expired session should not be found")
	}
}

func TestSessionStore_RevokeOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedTestUser(t, "alice", RoleUser)
	sess := env.seedSession(t, user, "laptop")

	ok, err := env.store.Revoke(ctx, sess.SessionToken)
	if err != nil || !ok {
		t.Fatalf("Revoke() = %v, %v; want true, nil", ok, err)
	}

	env.clock.Advance(time.Minute)
	ok, err = env.store.Revoke(ctx, sess.SessionToken)
	if err != nil {
		t.Fatalf("Revoke() second call error = %v", err)
	}
	if ok {
		t.Error("Revoke() of an inactive session should report false")
	}

	ok, err = env.store.Revoke(ctx, "unknown-token")
	if err != nil || ok {
		t.Errorf("Revoke(unknown) = %v, %v; want false, nil", ok, err)
	}
}

func TestSessionStore_RevokeAllForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedTestUser(t, "alice", RoleUser)
	bob := env.seedTestUser(t, "bob", RoleUser)

	env.seedSession(t, alice, "laptop")
	env.seedSession(t, alice, "phone")
	already := env.seedSession(t, alice, "tablet")
	other := env.seedSession(t, bob, "laptop")

	if _, err := env.store.Revoke(ctx, already.SessionToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	n, err := env.store.RevokeAllForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("RevokeAllForUser() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RevokeAllForUser() = %d, want 2", n)
	}

	if got, _ := env.store.FindBySessionToken(ctx, other.SessionToken); got == nil {
		t.Error("other user's session should stay live")
	}
}

func TestSessionStore_TouchActivityMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedTestUser(t, "alice", RoleUser)
	sess := env.seedSession(t, user, "laptop")

	env.clock.Advance(5 * time.Minute)
	touched, err := env.store.TouchActivity(ctx, sess.ID)
	if err != nil {
		t.Fatalf("TouchActivity() error = %v", err)
	}
	if !touched.LastActivity.Equal(env.clock.Now()) {
		t.Errorf("LastActivity = %v, want %v", touched.LastActivity, env.clock.Now())
	}

	// A writer with a lagging clock must not move last_activity backwards.
	lagging := NewSessionStore(env.db, func() time.Time { return sess.LoginAt }, time.UTC)
	again, err := lagging.TouchActivity(ctx, sess.ID)
	if err != nil {
		t.Fatalf("TouchActivity() error = %v", err)
	}
	if !again.LastActivity.Equal(touched.LastActivity) {
		t.Errorf("LastActivity moved back to %v from %v", again.LastActivity, touched.LastActivity)
	}

	missing, err := env.store.TouchActivity(ctx, "no-such-session")
	if err != nil {
		t.Fatalf("TouchActivity(missing) error = %v", err)
	}
	if missing != nil {
		t.Errorf("TouchActivity(missing) = %+v, want nil", missing)
	}
}

func TestSessionStore_TouchActivitySkipsDeadSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedTestUser(t, "alice", RoleUser)

	revoked := env.seedSession(t, user, "phone")
	if _, err := env.store.Revoke(ctx, revoked.SessionToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	env.clock.Advance(time.Minute)
	got, err := env.store.TouchActivity(ctx, revoked.ID)
	if err != nil {
		t.Fatalf("TouchActivity(revoked) error = %v", err)
	}
	if got != nil {
		t.Errorf("TouchActivity(revoked) = %+v, want nil", got)
	}

	expiring := env.seedSession(t, user, "laptop")
	env.clock.Advance(testAccessTTL)
	if got, err := env.store.TouchActivity(ctx, expiring.ID); err != nil || got != nil {
		t.Errorf("TouchActivity(expired) = %+v, %v; want nil, nil", got, err)
	}
}

func TestSessionStore_RevokeSessionReturnsRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedTestUser(t, "alice", RoleUser)
	sess := env.seedSession(t, user, "laptop")

	env.clock.Advance(time.Minute)
	got, err := env.store.RevokeSession(ctx, sess.SessionToken)
	if err != nil {
		t.Fatalf("RevokeSession() error = %v", err)
	}
	if got == nil {
		t.Fatal("RevokeSession() = nil, want the revoked row")
	}
	if got.ID != sess.ID || got.UserID != user.ID || got.IsActive {
		t.Errorf("RevokeSession() = %+v, want inactive %s of %s", got, sess.ID, user.ID)
	}
	if got.LogoutAt == nil || !got.LogoutAt.Equal(env.clock.Now()) {
		t.Errorf("LogoutAt = %v, want %v", got.LogoutAt, env.clock.Now())
	}

	again, err := env.store.RevokeSession(ctx, sess.SessionToken)
	if err != nil || again != nil {
		t.Errorf("RevokeSession() second call = %+v, %v; want nil, nil", again, err)
	}
}

func TestSessionStore_ActiveSessionsOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedTestUser(t, "alice", RoleUser)

	first := env.seedSession(t, user, "laptop")
	env.clock.Advance(time.Minute)
	second := env.seedSession(t, user, "phone")
	env.clock.Advance(time.Minute)
	revoked := env.seedSession(t, user, "tablet")
	if _, err := env.store.Revoke(ctx, revoked.SessionToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	env.clock.Advance(time.Minute)
	if _, err := env.store.TouchActivity(ctx, first.ID); err != nil {
		t.Fatalf("TouchActivity() error = %v", err)
	}

	sessions, err := env.store.ActiveSessionsForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ActiveSessionsForUser() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("ActiveSessionsForUser() returned %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != first.ID || sessions[1].ID != second.ID {
		t.Errorf("order = [%s %s], want [%s %s]", sessions[0].ID, sessions[1].ID, first.ID, second.ID)
	}
}

func TestSessionStore_PurgeExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedTestUser(t, "alice", RoleUser)

	create := func(token string, ttl time.Duration) *Session {
		t.Helper()
		s, err := env.store.Create(ctx, &Session{
			UserID:       user.ID,
			SessionToken: token,
			RefreshToken: "r-" + token,
			ExpiresAt:    env.clock.Now().Add(ttl),
		})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", token, err)
		}
		return s
	}

	create("short", time.Hour)
	longRevoked := create("long-revoked", 30*24*time.Hour)
	create("long-live", 30*24*time.Hour)
	if _, err := env.store.Revoke(ctx, longRevoked.SessionToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	env.clock.Advance(2 * time.Hour)
	recentRevoked := create("recent-revoked", 30*24*time.Hour)
	if _, err := env.store.Revoke(ctx, recentRevoked.SessionToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	// Only the expired short session is eligible now.
	n, err := env.store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", n)
	}

	// Eight days on, the first revocation is past retention; the second
	// revocation is too, since it happened only two hours later.
	env.clock.Advance(8 * 24 * time.Hour)
	n, err = env.store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PurgeExpired() = %d, want 2", n)
	}

	n, err = env.store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() second run error = %v", err)
	}
	if n != 0 {
		t.Errorf("PurgeExpired() second run = %d, want 0", n)
	}

	live, err := env.store.FindBySessionToken(ctx, "long-live")
	if err != nil || live == nil {
		t.Errorf("long-lived active session should survive purge, got %v, %v", live, err)
	}
}

func TestSessionStore_PurgeKeepsRecentRevocations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedTestUser(t, "alice", RoleUser)

	s, err := env.store.Create(ctx, &Session{
		UserID: user.ID, SessionToken: "st", RefreshToken: "rt",
		ExpiresAt: env.clock.Now().Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := env.store.Revoke(ctx, s.SessionToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	env.clock.Advance(6 * 24 * time.Hour)
	n, err := env.store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 0 {
		t.Errorf("PurgeExpired() = %d, want 0 within retention", n)
	}
}

func TestSessionStore_Stats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedTestUser(t, "alice", RoleUser)
	bob := env.seedTestUser(t, "bob", RoleUser)

	// Yesterday's session must not count towards today.
	env.seedSession(t, alice, "tablet")
	env.clock.Advance(24 * time.Hour)

	s1 := env.seedSession(t, alice, "laptop")
	s2 := env.seedSession(t, alice, "")
	env.seedSession(t, bob, "laptop")

	env.clock.Advance(10 * time.Minute)
	if _, err := env.store.TouchActivity(ctx, s1.ID); err != nil {
		t.Fatalf("TouchActivity() error = %v", err)
	}
	env.clock.Advance(10 * time.Minute)
	for _, s := range []*Session{s1, s2} {
		if _, err := env.store.Revoke(ctx, s.SessionToken); err != nil {
			t.Fatalf("Revoke() error = %v", err)
		}
	}

	stats, err := env.store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if stats.ActiveCount != 1 {
		t.Errorf("ActiveCount = %d, want 1", stats.ActiveCount)
	}
	if stats.SessionsCreatedToday != 3 {
		t.Errorf("SessionsCreatedToday = %d, want 3", stats.SessionsCreatedToday)
	}
	if stats.DistinctUsersToday != 2 {
		t.Errorf("DistinctUsersToday = %d, want 2", stats.DistinctUsersToday)
	}
	// (10 + 0) / 2 minutes.
	if stats.AvgSessionDurationMinutes != 5 {
		t.Errorf("AvgSessionDurationMinutes = %v, want 5", stats.AvgSessionDurationMinutes)
	}
	if stats.SessionsByDevice["laptop"] != 2 {
		t.Errorf("SessionsByDevice[laptop] = %d, want 2", stats.SessionsByDevice["laptop"])
	}
	if stats.SessionsByDevice[unknownDevice] != 1 {
		t.Errorf("SessionsByDevice[Unknown] = %d, want 1", stats.SessionsByDevice[unknownDevice])
	}
	if _, ok := stats.SessionsByDevice["tablet"]; ok {
		t.Error("yesterday's device should not be counted")
	}
}

func TestSessionStore_StatsEmpty(t *testing.T) {
	env := newTestEnv(t)

	stats, err := env.store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.ActiveCount != 0 || stats.SessionsCreatedToday != 0 || stats.AvgSessionDurationMinutes != 0 {
		t.Errorf("Stats() = %+v, want zeros", stats)
	}
	if stats.SessionsByDevice == nil {
		t.Error("SessionsByDevice should be an empty map, not nil")
	}
}

func TestSessionStore_RotateTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedTestUser(t, "alice", RoleUser)
	sess := env.seedSession(t, user, "laptop")

	env.clock.Advance(10 * time.Minute)
	newExpiry := env.clock.Now().Add(testAccessTTL)

	rotated, err := env.store.RotateTokens(ctx, sess.ID, sess.RefreshToken, "st-new", "rt-new", newExpiry)
	if err != nil {
		t.Fatalf("RotateTokens() error = %v", err)
	}
	if rotated == nil {
		t.Fatal("RotateTokens() returned nil for a live session")
	}
	if rotated.ID != sess.ID {
		t.Errorf("rotated ID = %q, want %q", rotated.ID, sess.ID)
	}
	if rotated.SessionToken != "st-new" || rotated.RefreshToken != "rt-new" {
		t.Errorf("tokens = %q %q, want st-new rt-new", rotated.SessionToken, rotated.RefreshToken)
	}
	if !rotated.ExpiresAt.Equal(newExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", rotated.ExpiresAt, newExpiry)
	}
	if !rotated.LastActivity.Equal(env.clock.Now()) {
		t.Errorf("LastActivity = %v, want %v", rotated.LastActivity, env.clock.Now())
	}

	if got, _ := env.store.FindBySessionToken(ctx, sess.SessionToken); got != nil {
		t.Error("old session token should no longer match")
	}

	// The old refresh token is consumed.
	again, err := env.store.RotateTokens(ctx, sess.ID, sess.RefreshToken, "st-x", "rt-x", newExpiry)
	if err != nil {
		t.Fatalf("RotateTokens() replay error = %v", err)
	}
	if again != nil {
		t.Errorf("RotateTokens() replay = %+v, want nil", again)
	}
}

func TestSessionStore_DeleteForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedTestUser(t, "alice", RoleUser)
	env.seedSession(t, user, "laptop")
	revoked := env.seedSession(t, user, "phone")
	if _, err := env.store.Revoke(ctx, revoked.SessionToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	n, err := env.store.DeleteForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("DeleteForUser() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteForUser() = %d, want 2", n)
	}

	sessions, err := env.store.ActiveSessionsForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ActiveSessionsForUser() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("sessions after delete = %d, want 0", len(sessions))
	}
}
