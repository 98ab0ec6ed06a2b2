package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fast = Policy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxElapsed: time.Second}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_GivesUpAfterBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		return errors.New("down")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	// first attempt plus MaxRetries
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad input")
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		return Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_NoRetryUnwrapsPermanent(t *testing.T) {
	sentinel := errors.New("bad input")
	err := Do(context.Background(), NoRetry, func() error { return Permanent(sentinel) })
	if err != sentinel {
		t.Fatalf("expected bare sentinel, got %v", err)
	}
}
