package shopauth

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
)

// lostReplyHook lets the first successful script call reach Redis and then
// reports a timeout, as if the reply had been lost on the wire.
type lostReplyHook struct {
	dropped atomic.Bool
}

func (h *lostReplyHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *lostReplyHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		name := cmd.Name()
		if err == nil && (name == "eval" || name == "evalsha") && h.dropped.CompareAndSwap(false, true) {
			cmd.SetErr(context.DeadlineExceeded)
			return context.DeadlineExceeded
		}
		return err
	}
}

func (h *lostReplyHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRateCheckIsNotRetriedAfterLostReply(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Store.Retries = 1
	})
	env.rdb.AddHook(&lostReplyHook{})

	_, err := env.engine.Register(context.Background(), RegisterRequest{Identifier: testIdentifier, Password: testPassword})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}

	var counted int
	for _, key := range env.mr.Keys() {
		if !strings.Contains(key, actionRegisterIP) {
			continue
		}
		value, err := env.mr.Get(key)
		if err != nil {
			t.Fatalf("read %s: %v", key, err)
		}
		if value != "1" {
			t.Fatalf("expected the request counted once, %s=%s", key, value)
		}
		counted++
	}
	if counted != 1 {
		t.Fatalf("expected one register counter, found %d", counted)
	}
}
