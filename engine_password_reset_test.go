package shopauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestForgotPasswordUnknownAccountIsSilent(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.engine.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected nil for unknown account, got %v", err)
	}
	env.notifier.mu.Lock()
	n := len(env.notifier.resets)
	env.notifier.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no notification, got %d", n)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	userID := env.register(t, testIdentifier, testPassword)
	session := env.login(t, testIdentifier, testPassword)
	ctx := context.Background()

	if err := env.engine.ForgotPassword(ctx, "ALICE@example.com"); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	sent := env.notifier.last(t)
	if sent.userID != userID || sent.identifier != testIdentifier || len(sent.token) != 43 {
		t.Fatalf("unexpected notification %+v", sent)
	}

	if err := env.engine.ResetPassword(ctx, sent.token, newTestPassword); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected sessions revoked by reset, got %v", err)
	}
	if _, err := env.engine.Login(ctx, LoginRequest{Identifier: testIdentifier, Password: testPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	env.login(t, testIdentifier, newTestPassword)

	if err := env.engine.ResetPassword(ctx, sent.token, "Another-Horse-99#"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected single-use token, got %v", err)
	}

	events := env.drainEvents()
	if !hasEvent(events, AuditPasswordResetRequested) || !hasEvent(events, AuditPasswordResetCompleted) {
		t.Fatal("expected reset audit events")
	}
}

func TestResetPasswordWeakPasswordKeepsToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testIdentifier, testPassword)
	ctx := context.Background()

	if err := env.engine.ForgotPassword(ctx, testIdentifier); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	token := env.notifier.last(t).token

	var verr *ValidationError
	if err := env.engine.ResetPassword(ctx, token, "weak"); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if err := env.engine.ResetPassword(ctx, token, newTestPassword); err != nil {
		t.Fatalf("token must survive a rejected password, got %v", err)
	}
}

func TestResetPasswordClearsLockout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testIdentifier, testPassword)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = env.engine.Login(ctx, LoginRequest{Identifier: testIdentifier, Password: "Wrong-Horse-42!"})
	}
	if _, err := env.engine.Login(ctx, LoginRequest{Identifier: testIdentifier, Password: testPassword}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected account locked, got %v", err)
	}

	if err := env.engine.ForgotPassword(ctx, testIdentifier); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, env.notifier.last(t).token, newTestPassword); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	env.login(t, testIdentifier, newTestPassword)
}

func TestResetPasswordClearsLoginWindow(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Login = RatePolicy{MaxAttempts: 2, Window: 15 * time.Minute}
	})
	env.register(t, testIdentifier, testPassword)
	fromIP := func(ip string) context.Context { return WithClientIP(context.Background(), ip) }

	for _, ip := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		_, _ = env.engine.Login(fromIP(ip), LoginRequest{Identifier: testIdentifier, Password: "Wrong-Horse-42!"})
	}

	ctx := context.Background()
	if err := env.engine.ForgotPassword(ctx, testIdentifier); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, env.notifier.last(t).token, newTestPassword); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	if _, err := env.engine.Login(fromIP("198.51.100.4"), LoginRequest{Identifier: testIdentifier, Password: newTestPassword}); err != nil {
		t.Fatalf("expected login right after reset, got %v", err)
	}
}

func TestResetPasswordLatestTokenWins(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testIdentifier, testPassword)
	ctx := context.Background()

	if err := env.engine.ForgotPassword(ctx, testIdentifier); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	first := env.notifier.last(t).token
	if err := env.engine.ForgotPassword(ctx, testIdentifier); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	second := env.notifier.last(t).token

	if err := env.engine.ResetPassword(ctx, first, newTestPassword); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected superseded token rejected, got %v", err)
	}
	if err := env.engine.ResetPassword(ctx, second, newTestPassword); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
}

func TestResetPasswordRejectsUnknownToken(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, token := range []string{"", "made-up-token"} {
		if err := env.engine.ResetPassword(context.Background(), token, newTestPassword); !errors.Is(err, ErrResetTokenInvalid) {
			t.Fatalf("ResetPassword(%q): expected ErrResetTokenInvalid, got %v", token, err)
		}
	}
}

func TestForgotPasswordRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Forgot = RatePolicy{MaxAttempts: 2, Window: time.Hour}
	})
	env.register(t, testIdentifier, testPassword)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := env.engine.ForgotPassword(ctx, testIdentifier); err != nil {
			t.Fatalf("attempt %d error: %v", i+1, err)
		}
	}
	err := env.engine.ForgotPassword(ctx, testIdentifier)
	var limited *RateLimitError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("RateLimitError must match ErrRateLimited")
	}
}
