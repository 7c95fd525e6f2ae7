package provider

import (
	"context"
	"errors"
	"testing"
)

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return NewError(KindRetryable, "test.op", errors.New("503"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return NewError(KindPermanent, "test.op", errors.New("404"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("permanent error must not be retried, got %d attempts", calls)
	}
}

func TestWithRetryStopsOnConflict(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return NewError(KindConflict, "test.op", errors.New("412"))
	})
	if !IsConflict(err) {
		t.Fatalf("expected conflict to surface, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("conflict must not be retried, got %d attempts", calls)
	}
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return NewError(KindRetryable, "test.op", errors.New("503"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, calls)
	}
}

func TestWithRetryHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, func() error {
		calls++
		cancel()
		return NewError(KindRetryable, "test.op", errors.New("503"))
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected no retry after cancellation, got %d attempts", calls)
	}
}

func TestKindOfUnknownErrorIsRetryable(t *testing.T) {
	if KindOf(errors.New("plain transport error")) != KindRetryable {
		t.Fatal("non-adapter errors must default to retryable")
	}
}
