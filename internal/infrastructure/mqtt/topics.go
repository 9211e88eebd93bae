package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "leitura"

// Topics builds the MQTT topics this service publishes to. All topics live
// under a single configurable prefix:
//
//	topics := mqtt.Topics{Prefix: "leitura"}
//	topics.SessionEvent("session.created")
//	// Returns: "leitura/auth/session/created"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: leitura/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// SessionEvent returns the topic for one session lifecycle event kind.
// The "session." namespace of the kind is dropped from the final level.
//
// Example: leitura/auth/session/revoked_all
func (t Topics) SessionEvent(kind string) string {
	return fmt.Sprintf("%s/auth/session/%s", t.prefix(), strings.TrimPrefix(kind, "session."))
}

// AllSessionEvents returns a wildcard subscription for every session event.
//
// Example: leitura/auth/session/+
func (t Topics) AllSessionEvents() string {
	return fmt.Sprintf("%s/auth/session/+", t.prefix())
}
