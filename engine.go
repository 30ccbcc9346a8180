package shopauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/shopauth/credential"
	"github.com/MrEthical07/shopauth/device"
	internalaudit "github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/internal/limiters"
	"github.com/MrEthical07/shopauth/internal/rate"
	"github.com/MrEthical07/shopauth/internal/storecall"
	"github.com/MrEthical07/shopauth/internal/stores"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/session"
)

// Rate limit actions. Each pairs with one policy in RateLimitConfig.
const (
	actionLoginIP        = "login:ip"
	actionLoginAccount   = "login:account"
	actionRegisterIP     = "register:ip"
	actionRefreshSession = "refresh:session"
	actionForgotIP       = "forgot:ip"
	actionForgotAccount  = "forgot:account"
	actionResetIP        = "reset:ip"
)

// Engine is the authentication core. All shared state lives in Redis or the
// credential repository, so any number of Engines may serve the same users.
// Methods are safe for concurrent use once [Builder.Build] returns.
type Engine struct {
	config Config

	credentials credential.Repository
	verifier    *credential.Verifier
	hasher      *password.Argon2
	policy      *password.Policy
	lockout     *limiters.Lockout
	limiter     *rate.Limiter
	sessions    *session.Store
	devices     *device.Detector
	resets      *stores.PasswordResetStore
	jwtManager  *jwt.Manager
	notifier    ResetNotifier

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger

	storePolicy storecall.Policy
	now         func() time.Time
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Ping checks that the shared session store answers.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.call(ctx, func(ctx context.Context) error { return e.sessions.Ping(ctx) }); err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return nil
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// RecordCSRFRejection accounts a request refused by the CSRF guard.
func (e *Engine) RecordCSRFRejection(ctx context.Context, userID, sessionID string, cause error) {
	if e == nil {
		return
	}
	e.metricInc(MetricCSRFRejected)
	e.logger.WarnContext(ctx, "shopauth: csrf validation failed",
		"user_id", userID,
		"session_id", sessionID,
		"ip", ClientIPFromContext(ctx),
		"error", cause,
	)
	e.emitAudit(ctx, internalaudit.Event{
		Type:      internalaudit.EventCSRFRejected,
		UserID:    userID,
		SessionID: sessionID,
		Reason:    errorReason(cause),
	})
}

/*
====================================================================================
STORE CALLS
====================================================================================
*/

func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return storecall.Do(ctx, e.storePolicy, e.logRetry, fn)
}

// callOnce is for store operations whose effect is not idempotent from the
// caller's view: refresh rotation, reset-token redemption, session creation.
func (e *Engine) callOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	p := e.storePolicy
	p.Retries = 0
	return storecall.Do(ctx, p, nil, fn)
}

func (e *Engine) logRetry(attempt int, err error) {
	e.logger.Debug("shopauth: retrying store call", "attempt", attempt, "error", err)
}

// clearLoginWindow ends the per-account login window so an unlocked or
// reset account is not still throttled by earlier failures. Best effort.
func (e *Engine) clearLoginWindow(ctx context.Context, identifier string) {
	if identifier == "" {
		return
	}
	err := e.call(ctx, func(ctx context.Context) error {
		return e.limiter.Reset(ctx, actionLoginAccount, identifier)
	})
	if err != nil {
		e.logger.WarnContext(ctx, "shopauth: failed to clear login window", "error", err)
	}
}

// unavailable records a failed store dependency and returns the fail-closed
// error for op.
func (e *Engine) unavailable(ctx context.Context, op string, err error) error {
	e.metricInc(MetricStoreUnavailable)
	e.logger.WarnContext(ctx, "shopauth: store unavailable", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", ErrServiceUnavailable, op, err)
}

// checkRate counts one request against policy. A store failure denies the
// request. The increment is not idempotent, so it is never retried.
func (e *Engine) checkRate(ctx context.Context, action, identifier string, policy RatePolicy, metric MetricID) error {
	var decision rate.Decision
	err := e.callOnce(ctx, func(ctx context.Context) error {
		var err error
		decision, err = e.limiter.CheckAndIncrement(ctx, action, identifier, policy.MaxAttempts, policy.Window)
		return err
	})
	if err != nil {
		return e.unavailable(ctx, "rate limit "+action, err)
	}
	if decision.Allowed {
		return nil
	}

	e.metricInc(metric)
	e.emitAudit(ctx, internalaudit.Event{
		Type:   internalaudit.EventRateLimited,
		Reason: action,
		Metadata: map[string]string{
			"retry_after_ms": fmt.Sprint(decision.RetryAfter.Milliseconds()),
		},
	})
	return &RateLimitError{Action: action, RetryAfter: decision.RetryAfter}
}

/*
====================================================================================
AUDIT AND METRICS
====================================================================================
*/

func (e *Engine) emitAudit(ctx context.Context, event internalaudit.Event) {
	if e.audit == nil {
		return
	}
	if event.IP == "" {
		event.IP = ClientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// errorReason is a short, secret-free label for audit records.
func errorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCsrfTokenMissing):
		return "csrf_missing"
	case errors.Is(err, ErrCsrfTokenMismatch):
		return "csrf_mismatch"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrServiceUnavailable):
		return "unavailable"
	default:
		return KindOf(err).String()
	}
}

// normalizeIdentifier is the canonical form used for lookups and per-account
// rate limit keys.
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
