package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MAX_DRAFT_ORDERS", "")
	t.Setenv("BACKEND_INITIAL_BACKOFF", "")
	t.Setenv("ADDR", "")

	cfg := Load()
	if cfg.MaxDraftOrders != 5 {
		t.Fatalf("expected default cap 5, got %d", cfg.MaxDraftOrders)
	}
	if cfg.BackendInitialBackoff != 200*time.Millisecond {
		t.Fatalf("unexpected backoff %v", cfg.BackendInitialBackoff)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr %s", cfg.Addr)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MAX_DRAFT_ORDERS", "3")
	t.Setenv("BACKEND_INITIAL_BACKOFF", "1s")
	t.Setenv("RUN_LOCAL", "true")
	t.Setenv("DEFERRED_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("DEFERRED_DELAY", "5m")

	cfg := Load()
	if cfg.MaxDraftOrders != 3 {
		t.Fatalf("expected cap 3, got %d", cfg.MaxDraftOrders)
	}
	if cfg.BackendInitialBackoff != time.Second {
		t.Fatalf("unexpected backoff %v", cfg.BackendInitialBackoff)
	}
	if !cfg.RunLocal {
		t.Fatal("expected RunLocal")
	}
	if cfg.DeferredDelay != 5*time.Minute {
		t.Fatalf("unexpected deferred delay %v", cfg.DeferredDelay)
	}
	if cfg.DeferredMaxAttempts != 10 {
		t.Fatalf("invalid value should fall back to default, got %d", cfg.DeferredMaxAttempts)
	}
}
