package shopauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/shopauth/credential"
	"github.com/MrEthical07/shopauth/internal"
	internalaudit "github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/internal/stores"
)

const resetTokenBytes = 32

// ForgotPassword starts a password reset. For an existing account it stores
// the sha256 of a fresh single-use token (replacing any earlier one) and hands
// the raw token to the ResetNotifier. The result is nil whether or not the
// account exists, and notifier failures are logged, not returned.
//
// Errors: *RateLimitError, ErrServiceUnavailable.
func (e *Engine) ForgotPassword(ctx context.Context, identifier string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	identifier = normalizeIdentifier(identifier)

	if err := e.checkRate(ctx, actionForgotIP, clientIPOrUnknown(ctx), e.config.RateLimit.Forgot, MetricPasswordResetRateLimited); err != nil {
		return err
	}
	if err := e.checkRate(ctx, actionForgotAccount, identifier, e.config.RateLimit.Forgot, MetricPasswordResetRateLimited); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)

	rec, err := e.credentials.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.emitAudit(ctx, internalaudit.Event{
				Type:   internalaudit.EventPasswordResetRequested,
				Reason: "unknown_identifier",
			})
			return nil
		}
		return e.unavailable(ctx, "credential lookup", err)
	}

	token, err := internal.NewToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("reset token: %w", err)
	}
	ttl := e.config.PasswordReset.TokenTTL
	expiresAt := e.now().Add(ttl)
	if err := e.call(ctx, func(ctx context.Context) error {
		return e.resets.Save(ctx, rec.UserID, internal.HashToken(token), ttl)
	}); err != nil {
		return e.unavailable(ctx, "reset token save", err)
	}

	e.emitAudit(ctx, internalaudit.Event{
		Type:    internalaudit.EventPasswordResetRequested,
		UserID:  rec.UserID,
		Success: true,
	})

	if e.notifier == nil {
		e.logger.WarnContext(ctx, "shopauth: no reset notifier configured, reset token not delivered", "user_id", rec.UserID)
		return nil
	}
	if err := e.notifier.NotifyPasswordReset(ctx, rec.UserID, rec.Identifier, token, expiresAt); err != nil {
		e.logger.ErrorContext(ctx, "shopauth: reset notification failed", "user_id", rec.UserID, "error", err)
	}
	return nil
}

// ResetPassword redeems a reset token and sets a new password. The token is
// consumed atomically, so it works once. On success the account's lockout and
// login window are cleared and every session of the user is revoked. A password that fails the
// strength rules is rejected before the token is consumed.
//
// Errors: *RateLimitError, *ValidationError, ErrResetTokenInvalid,
// ErrServiceUnavailable.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.checkRate(ctx, actionResetIP, clientIPOrUnknown(ctx), e.config.RateLimit.Reset, MetricPasswordResetRateLimited); err != nil {
		return err
	}
	if err := e.validatePassword(newPassword); err != nil {
		return err
	}
	if token == "" {
		e.metricInc(MetricPasswordResetFailure)
		return ErrResetTokenInvalid
	}

	var userID string
	err := e.callOnce(ctx, func(ctx context.Context) error {
		var err error
		userID, err = e.resets.Consume(ctx, internal.HashToken(token))
		return err
	})
	if err != nil {
		if errors.Is(err, stores.ErrResetNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, internalaudit.Event{
				Type:   internalaudit.EventPasswordResetCompleted,
				Reason: "invalid_token",
			})
			return ErrResetTokenInvalid
		}
		return e.unavailable(ctx, "reset token consume", err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := e.credentials.UpdatePasswordHash(ctx, userID, hash); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			return ErrResetTokenInvalid
		}
		return e.unavailable(ctx, "credential update", err)
	}
	if err := e.lockout.Unlock(ctx, userID); err != nil {
		e.logger.WarnContext(ctx, "shopauth: failed to clear lockout after reset", "user_id", userID, "error", err)
	}
	if rec, err := e.credentials.FindByID(ctx, userID); err == nil {
		e.clearLoginWindow(ctx, rec.Identifier)
	}

	revoked, err := e.revokeAll(ctx, userID, "")
	if err != nil {
		e.logger.ErrorContext(ctx, "shopauth: password reset but sessions were not revoked", "user_id", userID, "error", err)
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, internalaudit.Event{
		Type:     internalaudit.EventPasswordResetCompleted,
		UserID:   userID,
		Success:  true,
		Metadata: map[string]string{"revoked_sessions": fmt.Sprint(revoked)},
	})
	return nil
}
