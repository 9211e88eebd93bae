package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/leitura-auth/internal/infrastructure/config"
)

// decodeLine parses the single JSON record in buf.
func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not one JSON record: %v\n%s", err, buf.String())
	}
	return rec
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		" info ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriter_ServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "1.2.3", &buf)

	logger.Info("session created", "user_id", "usr-1")

	rec := decodeLine(t, &buf)
	want := map[string]any{
		"service": "leitura",
		"version": "1.2.3",
		"msg":     "session created",
		"user_id": "usr-1",
		"level":   "INFO",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "TEXT"}, "dev", &buf)

	logger.Debug("purge tick", "purged", 3)

	out := buf.String()
	if !strings.Contains(out, "msg=\"purge tick\"") || !strings.Contains(out, "purged=3") {
		t.Errorf("text output = %q", out)
	}
}

func TestNewWithWriter_MasksCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, "test", &buf)

	logger.Info("login",
		"username", "alice",
		"password", "hunter22",
		"Refresh_Token", "rt-value",
		"jwt_secret", "js-value",
		"session_id", "ses-1",
	)

	rec := decodeLine(t, &buf)
	for _, key := range []string{"password", "Refresh_Token", "jwt_secret"} {
		if rec[key] != redacted {
			t.Errorf("%s = %v, want %s", key, rec[key], redacted)
		}
	}
	if rec["username"] != "alice" || rec["session_id"] != "ses-1" {
		t.Errorf("identifiers should pass through: %v", rec)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "json"}, "test", &buf)

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %s", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn record missing: %s", buf.String())
	}
}

func TestLogger_WithKeepsParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(config.LoggingConfig{Format: "json"}, "test", &buf)
	child := parent.With("component", "sessions")

	child.Info("child")
	if rec := decodeLine(t, &buf); rec["component"] != "sessions" || rec["service"] != "leitura" {
		t.Errorf("child record = %v", rec)
	}

	buf.Reset()
	parent.Info("parent")
	if rec := decodeLine(t, &buf); rec["component"] != nil {
		t.Errorf("parent should not inherit child attributes: %v", rec)
	}
}

func TestDefaultAndDiscard(t *testing.T) {
	if Default() == nil || Discard() == nil {
		t.Fatal("expected non-nil loggers")
	}
	Discard().Error("nowhere", "password", "x")
}
