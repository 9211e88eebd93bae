package auth

import (
	"context"
	"errors"
	"time"
)

// EventKind names a session lifecycle transition.
type EventKind string

// Session lifecycle events.
const (
	EventSessionCreated    EventKind = "session.created"
	EventSessionRefreshed  EventKind = "session.refreshed"
	EventSessionRevoked    EventKind = "session.revoked"
	EventSessionRevokedAll EventKind = "session.revoked_all"
	EventSessionPurged     EventKind = "session.purged"
)

// Event describes one lifecycle change. Events never carry tokens.
type Event struct {
	Kind      EventKind `json:"kind"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Device    string    `json:"device,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher receives session lifecycle events. Publish failures are
// logged by the caller and never fail the originating operation.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

// StatsPublisher is implemented by publishers that also record periodic
// session statistics (emitted after each cleanup run).
type StatsPublisher interface {
	PublishStats(ctx context.Context, stats *SessionStats, at time.Time) error
}

// Fanout delivers every event to each publisher in order.
type Fanout []EventPublisher

// Publish implements EventPublisher. All publishers are attempted; their
// errors are joined.
func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishStats implements StatsPublisher for the members that support it.
func (f Fanout) PublishStats(ctx context.Context, stats *SessionStats, at time.Time) error {
	var errs []error
	for _, p := range f {
		sp, ok := p.(StatsPublisher)
		if !ok {
			continue
		}
		if err := sp.PublishStats(ctx, stats, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
