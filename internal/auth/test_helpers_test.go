package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nerrad567/leitura-auth/internal/infrastructure/database"
	"github.com/nerrad567/leitura-auth/internal/infrastructure/logging"
	_ "github.com/nerrad567/leitura-auth/migrations" // registers embedded schema
)

const (
	testAccessSecret  = "test-access-secret-at-least-32-chars!"
	testRefreshSecret = "test-refresh-secret-at-least-32-chars"
	testRootUsername  = "root"
	testPassword      = "test-password"
)

// testClock is an adjustable clock shared by every component under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	// Mid-morning UTC so "today" has room on both sides.
	return &testClock{now: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fastHasher produces bcrypt digests at minimum cost so tests stay quick.
// Verification goes through VerifyPassword like production digests.
type fastHasher struct{}

func (fastHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(b), err
}

func (fastHasher) Verify(password, digest string) (bool, error) {
	return VerifyPassword(password, digest)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	stats  []*SessionStats
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) PublishStats(_ context.Context, s *SessionStats, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = append(p.stats, s)
	return nil
}

func (p *recordingPublisher) kinds() []EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

// testEnv wires the full auth stack over a migrated temp-file database.
type testEnv struct {
	db        *database.DB
	clock     *testClock
	users     *SQLUserRepository
	store     *SQLSessionStore
	sessions  *SessionManager
	directory *Directory
	codec     *TokenCodec
	events    *recordingPublisher
}

const testAccessTTL = 30 * time.Minute

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testDB(t)
	clock := newTestClock()
	events := &recordingPublisher{}
	logger := logging.Discard()

	users := NewUserRepository(db, clock.Now)
	store := NewSessionStore(db, clock.Now, time.UTC)
	sessions := NewSessionManager(store, SessionConfig{AccessTTL: testAccessTTL}, logger,
		WithClock(clock.Now), WithEventPublisher(events))
	directory := NewDirectory(users, sessions, fastHasher{}, DirectoryConfig{RootUsername: testRootUsername}, logger)
	codec := NewTokenCodec(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     testAccessTTL,
		RefreshTTL:    7 * 24 * time.Hour,
	}, clock.Now)

	return &testEnv{
		db:        db,
		clock:     clock,
		users:     users,
		store:     store,
		sessions:  sessions,
		directory: directory,
		codec:     codec,
		events:    events,
	}
}

// testDB opens a temporary SQLite database with the embedded migrations applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db
}

// seedTestUser inserts an active user with testPassword and returns it.
func (e *testEnv) seedTestUser(t *testing.T, username string, role Role) *User {
	t.Helper()

	hash, err := fastHasher{}.Hash(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// seedSession opens a session for user via the manager.
func (e *testEnv) seedSession(t *testing.T, user *User, device string) *Session {
	t.Helper()

	sess, err := e.sessions.CreateSession(context.Background(), user, DeviceInfo{Device: device})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return sess
}
