package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Sync.ConnectTimeout != 5*time.Second {
		t.Errorf("expected 5s connect timeout, got %v", cfg.Sync.ConnectTimeout)
	}
	if cfg.Sync.DebounceInterval != time.Second {
		t.Errorf("expected 1s debounce interval, got %v", cfg.Sync.DebounceInterval)
	}
	if cfg.Sync.URL == "" {
		t.Error("expected a default sync URL")
	}
	if cfg.Status.Port != "8090" {
		t.Errorf("expected default status port 8090, got %s", cfg.Status.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SYNC_WS_URL", "ws://localhost:9000/notes")
	t.Setenv("SYNC_DEBOUNCE_INTERVAL", "250ms")
	t.Setenv("USER_ID", "42")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Sync.URL != "ws://localhost:9000/notes" {
		t.Errorf("expected overridden sync URL, got %s", cfg.Sync.URL)
	}
	if cfg.Sync.DebounceInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms debounce, got %v", cfg.Sync.DebounceInterval)
	}
	if cfg.Identity.UserID != 42 {
		t.Errorf("expected user id 42, got %d", cfg.Identity.UserID)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("SYNC_CONNECT_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Error("expected an error for an unparsable duration")
	}
}
