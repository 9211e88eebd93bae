package audit

import (
	"context"
	"fmt"

	"github.com/nerrad567/leitura-auth/internal/auth"
)

// Sources written by this package.
const (
	SourceSessions = "sessions"
	SourceAPI      = "api"
)

// ActionLoginFailed is recorded for rejected login attempts.
const ActionLoginFailed = "login.failed"

// Recorder turns session lifecycle events into audit entries. It
// implements auth.EventPublisher.
type Recorder struct {
	repo Repository
}

// NewRecorder creates a recorder on top of repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Publish implements auth.EventPublisher.
func (r *Recorder) Publish(ctx context.Context, e auth.Event) error {
	details := map[string]any{}
	if e.Device != "" {
		details["device"] = e.Device
	}
	if e.Count > 0 {
		details["count"] = e.Count
	}

	entry := &Entry{
		Action:    string(e.Kind),
		UserID:    e.UserID,
		SessionID: e.SessionID,
		Source:    SourceSessions,
		Details:   details,
		CreatedAt: e.Timestamp,
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("auditing %s: %w", e.Kind, err)
	}
	return nil
}

// LoginFailed records a rejected login. The attempted username is kept;
// the password never is.
func (r *Recorder) LoginFailed(ctx context.Context, username, ip string) error {
	details := map[string]any{"username": username}
	if ip != "" {
		details["ip"] = ip
	}
	if err := r.repo.Create(ctx, &Entry{
		Action:  ActionLoginFailed,
		Source:  SourceAPI,
		Details: details,
	}); err != nil {
		return fmt.Errorf("auditing failed login: %w", err)
	}
	return nil
}
