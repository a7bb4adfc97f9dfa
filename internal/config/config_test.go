package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("BACKEND_BASE_URL", "")
	t.Setenv("IDENTITY_DB_PATH", "/tmp/identity.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected server addr: %s", cfg.Server.Addr)
	}
	if cfg.Stub.Addr != ":8081" {
		t.Fatalf("unexpected stub addr: %s", cfg.Stub.Addr)
	}
	if cfg.Backend.BaseURL != "http://localhost:8081" {
		t.Fatalf("unexpected backend url: %s", cfg.Backend.BaseURL)
	}
	if cfg.Chat.PollMaxAttempts != 30 || cfg.Chat.PollInterval != 1500*time.Millisecond {
		t.Fatalf("unexpected poll defaults: %+v", cfg.Chat)
	}
	if cfg.Identity.DBPath != "/tmp/identity.db" {
		t.Fatalf("unexpected identity path: %s", cfg.Identity.DBPath)
	}
}

func TestLoadChatOverrides(t *testing.T) {
	t.Setenv("IDENTITY_DB_PATH", "/tmp/identity.db")
	t.Setenv("CHAT_POLL_MAX_ATTEMPTS", "5")
	t.Setenv("CHAT_POLL_INTERVAL_MS", "200")
	t.Setenv("CHAT_DIRECTORY_CONCURRENCY", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Chat.PollMaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", cfg.Chat.PollMaxAttempts)
	}
	if cfg.Chat.PollInterval != 200*time.Millisecond {
		t.Fatalf("expected 200ms interval, got %s", cfg.Chat.PollInterval)
	}
	if cfg.Chat.DirectoryConcurrency != 1 {
		t.Fatalf("expected concurrency clamped to 1, got %d", cfg.Chat.DirectoryConcurrency)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("IDENTITY_DB_PATH", "/tmp/identity.db")

	cases := map[string]string{
		"PORT":                   "80 80",
		"CHAT_POLL_MAX_ATTEMPTS": "0",
		"CHAT_POLL_INTERVAL_MS":  "soon",
		"LOG_DEVELOPMENT":        "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestAIConfigEnabled(t *testing.T) {
	if (AIConfig{APIKey: "k"}).Enabled() {
		t.Fatal("expected disabled without model")
	}
	if !(AIConfig{Model: "m", AccessKey: "a", SecretKey: "s"}).Enabled() {
		t.Fatal("expected enabled with AK/SK and model")
	}
}
