package rate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T) (*Limiter, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return New(rdb, ""), mr, rdb
}

func TestCheckAndIncrementDeniesAfterLimit(t *testing.T) {
	l, _, _ := newLimiterTest(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.CheckAndIncrement(ctx, "login:account", "x@example.com", 5, 15*time.Minute)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}

	d, err := l.CheckAndIncrement(ctx, "login:account", "x@example.com", 5, 15*time.Minute)
	if err != nil {
		t.Fatalf("sixth attempt: %v", err)
	}
	if d.Allowed {
		t.Fatal("sixth attempt must be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 15*time.Minute {
		t.Fatalf("unexpected retry-after %s", d.RetryAfter)
	}
}

func TestCheckAndIncrementResetsAfterWindow(t *testing.T) {
	l, mr, _ := newLimiterTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.CheckAndIncrement(ctx, "register:ip", "10.0.0.1", 2, time.Minute); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	d, _ := l.CheckAndIncrement(ctx, "register:ip", "10.0.0.1", 2, time.Minute)
	if d.Allowed {
		t.Fatal("expected denial inside window")
	}

	mr.FastForward(time.Minute + time.Second)

	d, err := l.CheckAndIncrement(ctx, "register:ip", "10.0.0.1", 2, time.Minute)
	if err != nil {
		t.Fatalf("after window: %v", err)
	}
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("expected fresh window, got %+v", d)
	}
}

func TestCheckAndIncrementKeysAreIndependent(t *testing.T) {
	l, _, _ := newLimiterTest(t)
	ctx := context.Background()

	if _, err := l.CheckAndIncrement(ctx, "login:ip", "1.1.1.1", 1, time.Minute); err != nil {
		t.Fatal(err)
	}
	d, _ := l.CheckAndIncrement(ctx, "login:ip", "2.2.2.2", 1, time.Minute)
	if !d.Allowed {
		t.Fatal("different identifier must have its own counter")
	}
	d, _ = l.CheckAndIncrement(ctx, "register:ip", "1.1.1.1", 1, time.Minute)
	if !d.Allowed {
		t.Fatal("different action must have its own counter")
	}
}

func TestCheckAndIncrementConcurrentCountsExactly(t *testing.T) {
	l, _, rdb := newLimiterTest(t)
	ctx := context.Background()

	const workers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.CheckAndIncrement(ctx, "refresh:session", "sid", 10, time.Minute)
			if err != nil {
				t.Errorf("increment: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Fatalf("expected exactly 10 allowed, got %d", allowed)
	}
	n, err := rdb.Get(ctx, "rl:refresh:session:sid").Int()
	if err != nil || n != workers {
		t.Fatalf("expected counter %d, got %d (%v)", workers, n, err)
	}
}

func TestCheckAndIncrementRedisDown(t *testing.T) {
	l, mr, _ := newLimiterTest(t)
	mr.Close()

	_, err := l.CheckAndIncrement(context.Background(), "login:ip", "1.1.1.1", 5, time.Minute)
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestResetClearsCounter(t *testing.T) {
	l, mr, _ := newLimiterTest(t)
	ctx := context.Background()

	_, _ = l.CheckAndIncrement(ctx, "forgot:account", "u1", 5, time.Hour)
	if err := l.Reset(ctx, "forgot:account", "u1"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(l.key("forgot:account", "u1")) {
		t.Fatal("expected the counter key to be gone after reset")
	}
	d, err := l.CheckAndIncrement(ctx, "forgot:account", "u1", 5, time.Hour)
	if err != nil || d.Count != 1 {
		t.Fatalf("expected a fresh window, got %+v (%v)", d, err)
	}
}
