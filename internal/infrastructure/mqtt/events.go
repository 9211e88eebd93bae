package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/leitura-auth/internal/auth"
)

// Publisher is the subset of Client used to emit session events.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// SessionEvents publishes auth session lifecycle events as JSON, one topic
// per event kind. Messages are never retained.
type SessionEvents struct {
	client Publisher
	topics Topics
	qos    byte
}

// NewSessionEvents creates an auth.EventPublisher on top of client.
func NewSessionEvents(client Publisher, topics Topics, qos byte) *SessionEvents {
	return &SessionEvents{client: client, topics: topics, qos: qos}
}

// Publish implements auth.EventPublisher.
func (p *SessionEvents) Publish(ctx context.Context, e auth.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publishing %s: %w", e.Kind, err)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", e.Kind, err)
	}

	if err := p.client.Publish(p.topics.SessionEvent(string(e.Kind)), payload, p.qos, false); err != nil {
		return fmt.Errorf("publishing %s: %w", e.Kind, err)
	}
	return nil
}
