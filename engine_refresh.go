package shopauth

import (
	"context"
	"errors"
	"fmt"

	internalaudit "github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/refresh"
	"github.com/MrEthical07/shopauth/session"
)

// Refresh rotates a refresh token. The presented secret is compared with the
// stored hash and replaced in one atomic step, so of any number of concurrent
// calls with the same token exactly one succeeds. Every other caller, and any
// later replay of a rotated token, is treated as theft: the session is revoked
// and ErrTokenReuseDetected returned.
//
// Errors: ErrRefreshInvalid, *RateLimitError, ErrTokenReuseDetected,
// ErrSessionRevoked, ErrSessionNotFound, ErrServiceUnavailable.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	presented, err := refresh.Decode(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrRefreshInvalid
	}

	if err := e.checkRate(ctx, actionRefreshSession, presented.SessionID, e.config.RateLimit.Refresh, MetricRefreshRateLimited); err != nil {
		return nil, err
	}

	next, err := refresh.New(presented.SessionID)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	nextExpiry := e.now().Add(e.config.Session.RefreshTTL)

	var sess *session.Session
	err = e.callOnce(ctx, func(ctx context.Context) error {
		var err error
		sess, err = e.sessions.Rotate(ctx, presented.SessionID, presented.Hash(), next.Hash(), nextExpiry)
		return err
	})
	if err != nil {
		return nil, e.handleRotateError(ctx, presented.SessionID, err)
	}

	access, accessExp, err := e.jwtManager.CreateAccess(sess.UserID, sess.SessionID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	encoded, err := next.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode refresh token: %w", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, internalaudit.Event{
		Type:      internalaudit.EventRefresh,
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		Success:   true,
	})

	return &RefreshResult{
		TokenPair: TokenPair{
			AccessToken:      access,
			AccessExpiresAt:  accessExp,
			RefreshToken:     encoded,
			RefreshExpiresAt: sess.ExpiresTime(),
		},
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		CSRFToken: sess.CSRFToken,
	}, nil
}

func (e *Engine) handleRotateError(ctx context.Context, sessionID string, err error) error {
	switch {
	case errors.Is(err, session.ErrRefreshHashMismatch):
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricSessionRevoked)

		// The script already revoked the session; the lookup only names the
		// owner in the security record.
		var userID string
		if sess, getErr := e.sessions.Get(ctx, sessionID); getErr == nil {
			userID = sess.UserID
		}
		e.logger.WarnContext(ctx, "shopauth: refresh token reuse detected, session revoked",
			"user_id", userID,
			"session_id", sessionID,
			"ip", ClientIPFromContext(ctx),
		)
		e.emitAudit(ctx, internalaudit.Event{
			Type:      internalaudit.EventRefreshReuseDetected,
			UserID:    userID,
			SessionID: sessionID,
			Reason:    "stale_refresh_token",
		})
		return ErrTokenReuseDetected

	case errors.Is(err, session.ErrSessionRevoked), errors.Is(err, session.ErrSessionNotFound):
		e.metricInc(MetricRefreshFailure)
		return err

	case errors.Is(err, session.ErrSessionCorrupt):
		e.metricInc(MetricRefreshFailure)
		e.logger.ErrorContext(ctx, "shopauth: corrupt session record", "session_id", sessionID, "error", err)
		return fmt.Errorf("%w: %v", ErrRefreshInvalid, err)

	default:
		e.metricInc(MetricRefreshFailure)
		return e.unavailable(ctx, "session rotate", err)
	}
}

// ValidateAccess verifies an access token's signature, expiry, issuer and
// audience. It does not consult the session store, so a logged-out session's
// access token stays valid until it expires.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AccessClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := e.now()
	claims, err := e.jwtManager.ParseAccess(token)
	e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateSession is ValidateAccess plus a session lookup: revoked and expired
// sessions are rejected. The returned context carries the session's CSRF
// token for binding checks.
//
// Errors: the ValidateAccess errors, ErrSessionRevoked, ErrSessionNotFound,
// ErrServiceUnavailable.
func (e *Engine) ValidateSession(ctx context.Context, token string) (SessionContext, error) {
	claims, err := e.ValidateAccess(ctx, token)
	if err != nil {
		return SessionContext{}, err
	}

	var sess *session.Session
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		sess, err = e.sessions.Get(ctx, claims.SessionID)
		return err
	})
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return SessionContext{}, ErrSessionNotFound
	case errors.Is(err, session.ErrSessionCorrupt):
		return SessionContext{}, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	case err != nil:
		return SessionContext{}, e.unavailable(ctx, "session lookup", err)
	}

	if sess.Revoked {
		return SessionContext{}, ErrSessionRevoked
	}
	if sess.UserID != claims.UserID {
		return SessionContext{}, ErrTokenInvalid
	}

	return SessionContext{
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		CSRFToken: sess.CSRFToken,
	}, nil
}
