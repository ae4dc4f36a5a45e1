package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EMA_SESSION__URL", "wss://realtime.example.com/v1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Session.TurnDetection != "server_vad" {
		t.Fatalf("expected server_vad, got %q", cfg.Session.TurnDetection)
	}
	if cfg.Sink.Timeout != 10*time.Second {
		t.Fatalf("expected 10s sink timeout, got %v", cfg.Sink.Timeout)
	}
	if cfg.Sink.Overflow != "drop_oldest" {
		t.Fatalf("expected drop_oldest, got %q", cfg.Sink.Overflow)
	}
	if cfg.Tools.Timeout != 30*time.Second {
		t.Fatalf("expected 30s tool timeout, got %v", cfg.Tools.Timeout)
	}
	if cfg.Feedback.MinRating != 1 || cfg.Feedback.MaxRating != 5 {
		t.Fatalf("expected 1..5 rating scale, got %d..%d", cfg.Feedback.MinRating, cfg.Feedback.MaxRating)
	}
	if cfg.Control.Addr != "127.0.0.1:8089" {
		t.Fatalf("expected default control addr, got %q", cfg.Control.Addr)
	}
	if cfg.Telemetry.ServiceName != "ema-realtime" {
		t.Fatalf("expected default service name, got %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadLayers(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
session:
  url: wss://realtime.example.com/v1
  model: voice-1
  turn_detection: semantic_vad
sink:
  url: https://logs.example.com/records
  queue_limit: 100
  timeout: 5s
feedback:
  max_rating: 10
`)
	t.Setenv("EMA_SINK__QUEUE_LIMIT", "25")
	t.Setenv("EMA_CONTROL__ADDR", ":9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Session.Model != "voice-1" {
		t.Fatalf("expected model from file, got %q", cfg.Session.Model)
	}
	if cfg.Session.TurnDetection != "semantic_vad" {
		t.Fatalf("expected file to override default, got %q", cfg.Session.TurnDetection)
	}
	if cfg.Sink.QueueLimit != 25 {
		t.Fatalf("expected env to override file, got %d", cfg.Sink.QueueLimit)
	}
	if cfg.Sink.Timeout != 5*time.Second {
		t.Fatalf("expected 5s, got %v", cfg.Sink.Timeout)
	}
	if cfg.Control.Addr != ":9999" {
		t.Fatalf("expected :9999, got %q", cfg.Control.Addr)
	}
	if cfg.Feedback.MaxRating != 10 {
		t.Fatalf("expected 10, got %d", cfg.Feedback.MaxRating)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("EMA_SESSION__URL=wss://dotenv.example.com\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("EMA_SESSION__URL") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Session.URL != "wss://dotenv.example.com" {
		t.Fatalf("expected url from .env, got %q", cfg.Session.URL)
	}
}

func TestLoadSubstitutesSecrets(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
session:
  url: wss://realtime.example.com/v1
  api_key: ${TEST_SESSION_KEY}
tools:
  api_key: prefix-${TEST_TOOLS_KEY}
`)
	t.Setenv("TEST_SESSION_KEY", "secret")
	t.Setenv("TEST_TOOLS_KEY", "search")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Session.APIKey != "secret" {
		t.Fatalf("expected secret, got %q", cfg.Session.APIKey)
	}
	if cfg.Tools.APIKey != "prefix-search" {
		t.Fatalf("expected prefix-search, got %q", cfg.Tools.APIKey)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing session url", yaml: "sink:\n  queue_limit: 1\n"},
		{name: "unknown turn detection", yaml: "session:\n  url: wss://a.example.com\n  turn_detection: push_to_talk\n"},
		{name: "unknown overflow", yaml: "session:\n  url: wss://a.example.com\nsink:\n  overflow: block\n"},
		{name: "negative queue limit", yaml: "session:\n  url: wss://a.example.com\nsink:\n  queue_limit: -1\n"},
		{name: "inverted rating scale", yaml: "session:\n  url: wss://a.example.com\nfeedback:\n  min_rating: 5\n  max_rating: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Fatalf("expected validation error, got nil")
			}
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "${TEST_VAR}", want: "test-value"},
		{name: "embedded", input: "a-${TEST_VAR}-b", want: "a-test-value-b"},
		{name: "plain", input: "plain", want: "plain"},
		{name: "undefined", input: "${UNDEFINED_TEST_VAR}", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
