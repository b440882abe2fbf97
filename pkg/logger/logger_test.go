package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"nonocoop/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "relay.bridge").Info("Event forwarded", "session_id", "42", "ok", true)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Message != "Event forwarded" {
		t.Fatalf("message = %q, want %q", entry.Message, "Event forwarded")
	}
	if entry.Component != "relay.bridge" {
		t.Fatalf("component = %q, want %q", entry.Component, "relay.bridge")
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
	if entry.SessionID != "42" {
		t.Fatalf("session_id = %q, want %q", entry.SessionID, "42")
	}
	if _, ok := entry.Fields["session_id"]; ok {
		t.Fatal("session_id should be lifted out of fields")
	}
	if got := entry.Fields["ok"]; got != true {
		t.Fatalf("fields.ok = %v, want true", got)
	}
}

func TestLoggerPlayerTag(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	ForPlayer(log, "alice").WithGroup("relay").Info("Bridge attached", "role", "joining")

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry.Player != "alice" {
		t.Fatalf("player = %q, want %q", entry.Player, "alice")
	}
	if got := entry.Fields["relay.role"]; got != "joining" {
		t.Fatalf("fields[relay.role] = %v, want %q", got, "joining")
	}
	if ForPlayer(log, "") != log {
		t.Fatal("empty player id should return the logger unchanged")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerEnvironmentOverrides(t *testing.T) {
	t.Setenv("NONOCOOP_LOG_LEVEL", "debug")
	t.Setenv("NONOCOOP_LOG_FORMAT", "text")
	defer unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Debug("Debug enabled", "component", "test")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func TestLoggerRejectsUnknownSettings(t *testing.T) {
	unsetLoggingEnv(t)

	if _, err := newWithWriter(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := newWithWriter(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLoggerDefaultsToTextFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Default format")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format by default, got %q", line)
	}
}

func TestLoggerGroupedAttrsAndCaller(t *testing.T) {
	unsetLoggingEnv(t)
	t.Setenv("NONOCOOP_LOG_ADD_SOURCE", "yes")

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "JSON"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("seq", 7).WithGroup("relay").With("kind", "occupy-field").Warn("Out of order", "from", "peer")

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	want := map[string]any{"seq": float64(7), "relay.kind": "occupy-field", "relay.from": "peer"}
	for key, value := range want {
		if entry.Fields[key] != value {
			t.Fatalf("fields[%s] = %v, want %v", key, entry.Fields[key], value)
		}
	}
	if !strings.HasPrefix(entry.Caller, "logger_test.go:") {
		t.Fatalf("caller = %q, want logger_test.go:<line>", entry.Caller)
	}
}

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	_ = os.Unsetenv("NONOCOOP_LOG_LEVEL")
	_ = os.Unsetenv("NONOCOOP_LOG_FORMAT")
	_ = os.Unsetenv("NONOCOOP_LOG_ADD_SOURCE")
}
