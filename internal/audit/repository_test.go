package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/leitura-auth/internal/auth"
	"github.com/nerrad567/leitura-auth/internal/infrastructure/database"
	_ "github.com/nerrad567/leitura-auth/migrations" // registers embedded schema
)

var testStart = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func testRepo(t *testing.T) *SQLRepository {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "audit-test.db"),
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
	return NewSQLRepository(db, func() time.Time { return testStart })
}

func TestSQLRepository_CreateAndList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	entries := []*Entry{
		{Action: "session.created", UserID: "usr-1", SessionID: "ses-1", Source: SourceSessions,
			Details: map[string]any{"device": "laptop"}, CreatedAt: testStart.Add(1 * time.Minute)},
		{Action: "session.revoked", SessionID: "ses-1", Source: SourceSessions, CreatedAt: testStart.Add(2 * time.Minute)},
		{Action: "session.created", UserID: "usr-2", Source: SourceSessions, CreatedAt: testStart.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Error("Create() should assign an ID")
		}
	}

	got, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Total != 3 || len(got.Entries) != 3 {
		t.Fatalf("List() total = %d, entries = %d, want 3", got.Total, len(got.Entries))
	}
	if got.Limit != defaultPageSize {
		t.Errorf("Limit = %d, want %d", got.Limit, defaultPageSize)
	}
	if got.Entries[0].UserID != "usr-2" {
		t.Errorf("first entry = %+v, want most recent first", got.Entries[0])
	}

	last := got.Entries[2]
	want := Entry{
		ID:        entries[0].ID,
		Action:    "session.created",
		UserID:    "usr-1",
		SessionID: "ses-1",
		Source:    SourceSessions,
		Details:   map[string]any{"device": "laptop"},
		CreatedAt: testStart.Add(time.Minute),
	}
	if diff := cmp.Diff(want, last); diff != "" {
		t.Errorf("oldest entry mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLRepository_ListFilters(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for i, action := range []string{"session.created", "session.created", "session.revoked", ActionLoginFailed} {
		userID := "usr-1"
		if i == 1 {
			userID = "usr-2"
		}
		if err := repo.Create(ctx, &Entry{Action: action, UserID: userID, Source: SourceSessions}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantLen   int
	}{
		{"action", Filter{Action: "session.created"}, 2, 2},
		{"user", Filter{UserID: "usr-1"}, 3, 3},
		{"action and user", Filter{Action: "session.created", UserID: "usr-2"}, 1, 1},
		{"page", Filter{Limit: 2, Offset: 1}, 4, 2},
		{"past the end", Filter{Offset: 10}, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if got.Total != tt.wantTotal || len(got.Entries) != tt.wantLen {
				t.Errorf("List(%+v) total = %d, len = %d, want %d, %d",
					tt.filter, got.Total, len(got.Entries), tt.wantTotal, tt.wantLen)
			}
		})
	}
}

func TestSQLRepository_ListClampsLimit(t *testing.T) {
	repo := testRepo(t)

	got, err := repo.List(context.Background(), Filter{Limit: 10_000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Limit != maxPageSize || got.Offset != 0 {
		t.Errorf("Limit, Offset = %d, %d, want %d, 0", got.Limit, got.Offset, maxPageSize)
	}
	if got.Entries == nil {
		t.Error("Entries should be an empty slice, not nil")
	}
}

func TestRecorder_Publish(t *testing.T) {
	repo := testRepo(t)
	rec := NewRecorder(repo)
	ctx := context.Background()

	if err := rec.Publish(ctx, auth.Event{
		Kind: auth.EventSessionRevokedAll, UserID: "usr-1", Count: 3, Timestamp: testStart,
	}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := rec.LoginFailed(ctx, "mallory", "10.0.0.9"); err != nil {
		t.Fatalf("LoginFailed() error = %v", err)
	}

	got, err := repo.List(ctx, Filter{Action: string(auth.EventSessionRevokedAll)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(got.Entries))
	}
	e := got.Entries[0]
	if e.UserID != "usr-1" || e.Source != SourceSessions || e.Details["count"] != float64(3) {
		t.Errorf("revoked_all entry = %+v", e)
	}

	got, err = repo.List(ctx, Filter{Action: ActionLoginFailed})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Details["username"] != "mallory" || got.Entries[0].Source != SourceAPI {
		t.Errorf("login.failed entries = %+v", got.Entries)
	}
}

type failingRepo struct{}

func (failingRepo) Create(context.Context, *Entry) error { return errors.New("disk full") }

func (failingRepo) List(context.Context, Filter) (*ListResult, error) {
	return nil, errors.New("disk full")
}

func TestRecorder_PublishError(t *testing.T) {
	rec := NewRecorder(failingRepo{})

	err := rec.Publish(context.Background(), auth.Event{Kind: auth.EventSessionCreated})
	if err == nil {
		t.Fatal("Publish() should surface repository errors")
	}
}
