package storecall

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errDomain = errors.New("domain")

func fastPolicy() Policy {
	return Policy{Timeout: 50 * time.Millisecond, Retries: 1, Backoff: time.Millisecond}
}

func TestDoRetriesTransientOnce(t *testing.T) {
	calls := 0
	retries := 0
	err := Do(context.Background(), fastPolicy(), func(int, error) { retries++ }, func(context.Context) error {
		calls++
		if calls == 1 {
			return Unavailable(errors.New("conn reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls != 2 || retries != 1 {
		t.Fatalf("expected 2 calls and 1 retry, got %d/%d", calls, retries)
	}
}

func TestDoSurfacesUnavailableAfterRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), nil, func(context.Context) error {
		calls++
		return errors.New("dial tcp: i/o timeout")
	})
	// plain errors are not transient
	if err == nil || calls != 1 {
		t.Fatalf("expected single call for non-transient error, got %d", calls)
	}

	calls = 0
	err = Do(context.Background(), fastPolicy(), nil, func(context.Context) error {
		calls++
		return Unavailable(errors.New("down"))
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDoDoesNotRetryDomainErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), nil, func(context.Context) error {
		calls++
		return errDomain
	})
	if !errors.Is(err, errDomain) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("domain error must not be reported as unavailable")
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestDoAppliesPerAttemptTimeout(t *testing.T) {
	start := time.Now()
	err := Do(context.Background(), fastPolicy(), nil, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after timeouts, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout policy not applied, took %s", elapsed)
	}
}

func TestDoStopsWhenCallerContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastPolicy(), nil, func(ctx context.Context) error {
		calls++
		return ctx.Err()
	})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if calls != 1 {
		t.Fatalf("expected no retry after caller cancellation, got %d calls", calls)
	}
}
