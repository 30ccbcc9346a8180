package storecall

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrUnavailable marks a store failure that survived the retry policy or
// that a store reported as an infrastructure problem.
var ErrUnavailable = errors.New("store unavailable")

// Policy bounds a single logical store call.
type Policy struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// DefaultPolicy is 500ms per attempt and one retry after 50ms.
func DefaultPolicy() Policy {
	return Policy{
		Timeout: 500 * time.Millisecond,
		Retries: 1,
		Backoff: 50 * time.Millisecond,
	}
}

// Unavailable wraps err so it matches ErrUnavailable.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Transient reports whether err is worth another attempt.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Do runs fn under the policy. onRetry, when non-nil, is called before the
// second and later attempts. Errors that exhaust the policy while transient are
// returned wrapped with ErrUnavailable; any other error is returned unchanged.
func Do(ctx context.Context, p Policy, onRetry func(attempt int, err error), fn func(ctx context.Context) error) error {
	if p.Retries < 0 {
		p.Retries = 0
	}

	var err error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, err)
			}
			if waitErr := sleep(ctx, p.Backoff*time.Duration(attempt)); waitErr != nil {
				return Unavailable(err)
			}
		}

		err = runAttempt(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}
		if !Transient(err) {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}

	return Unavailable(err)
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
