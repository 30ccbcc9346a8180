package shopauth

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth/internal/storecall"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{&ValidationError{Field: "password"}, KindValidation},
		{&RateLimitError{Action: "login:ip", RetryAfter: time.Second}, KindRateLimit},
		{&AccountLockedError{LockedUntil: time.Now()}, KindAccountLocked},
		{ErrAccountExists, KindConflict},
		{ErrTokenReuseDetected, KindTokenReuse},
		{ErrCsrfTokenMismatch, KindAuthorization},
		{ErrInvalidCredentials, KindAuthentication},
		{fmt.Errorf("wrapped: %w", ErrTokenExpired), KindAuthentication},
		{ErrSessionRevoked, KindAuthentication},
		{fmt.Errorf("%w: redis down", ErrServiceUnavailable), KindUnavailable},
		{storecall.Unavailable(errors.New("dial tcp")), KindUnavailable},
		{errors.New("boom"), KindInternal},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Fatalf("KindOf(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	var err error = &AccountLockedError{LockedUntil: time.Now().Add(time.Hour)}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("AccountLockedError must match ErrAccountLocked")
	}
	var locked *AccountLockedError
	if !errors.As(fmt.Errorf("login: %w", err), &locked) {
		t.Fatal("expected errors.As to find AccountLockedError")
	}

	err = &ValidationError{Field: "password", Violations: []Violation{{Rule: "min_length"}, {Rule: "digit"}}}
	if !errors.Is(err, ErrValidation) {
		t.Fatal("ValidationError must match ErrValidation")
	}
	if err.Error() != "validation failed: password (min_length, digit)" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
