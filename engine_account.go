package shopauth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/MrEthical07/shopauth/credential"
	internalaudit "github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/password"
	"github.com/google/uuid"
)

const maxIdentifierLength = 254

// Register creates an account. The identifier must be a bare email address
// and is stored lower-cased; the password must satisfy every strength rule.
// The password is hashed before the insert, so a taken identifier costs the
// same as a successful registration.
//
// Errors: *RateLimitError, *ValidationError, ErrAccountExists,
// ErrServiceUnavailable.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkRate(ctx, actionRegisterIP, clientIPOrUnknown(ctx), e.config.RateLimit.Register, MetricRegisterRateLimited); err != nil {
		return nil, err
	}

	identifier, err := parseIdentifier(req.Identifier)
	if err != nil {
		return nil, err
	}
	if err := e.validatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}

	now := e.now().UTC()
	rec := &credential.Record{
		UserID:       id.String(),
		Identifier:   identifier,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.credentials.Create(ctx, rec); err != nil {
		if errors.Is(err, credential.ErrDuplicate) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, internalaudit.Event{Type: internalaudit.EventRegister, Reason: "duplicate"})
			return nil, ErrAccountExists
		}
		return nil, e.unavailable(ctx, "credential create", err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, internalaudit.Event{
		Type:    internalaudit.EventRegister,
		UserID:  rec.UserID,
		Success: true,
	})
	return &RegisterResult{
		UserID:     rec.UserID,
		Identifier: identifier,
		CreatedAt:  now,
	}, nil
}

// parseIdentifier accepts "user@example.com" only: no display name, no
// angle brackets.
func parseIdentifier(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	invalid := &ValidationError{
		Field:      "identifier",
		Violations: []Violation{{Rule: "email", Message: "identifier must be a valid email address"}},
	}
	if trimmed == "" || len(trimmed) > maxIdentifierLength {
		return "", invalid
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Name != "" || addr.Address != trimmed {
		return "", invalid
	}
	return strings.ToLower(addr.Address), nil
}

func (e *Engine) validatePassword(plaintext string) error {
	if violations := e.policy.Validate(plaintext); len(violations) > 0 {
		return &ValidationError{Field: "password", Violations: violations}
	}
	return nil
}

// ValidatePassword reports every strength rule plaintext breaks, or nil.
func (e *Engine) ValidatePassword(plaintext string) []Violation {
	if e == nil {
		return nil
	}
	return e.policy.Validate(plaintext)
}

// ChangePassword replaces the password of an authenticated user after
// verifying the current one, then revokes every other session of the user.
// The session identified by sessionID stays active.
//
// A wrong current password counts toward the lockout like a failed login.
//
// Errors: *ValidationError, ErrInvalidCredentials, *AccountLockedError,
// ErrUnauthorized, ErrServiceUnavailable.
func (e *Engine) ChangePassword(ctx context.Context, userID, sessionID, oldPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.validatePassword(newPassword); err != nil {
		return err
	}
	if oldPassword == newPassword {
		return &ValidationError{
			Field:      "new_password",
			Violations: []Violation{{Rule: "reuse", Message: "new password must differ from the current password"}},
		}
	}

	rec, err := e.credentials.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrUnauthorized
		}
		return e.unavailable(ctx, "credential lookup", err)
	}
	if until, locked := e.lockout.ActiveUntil(rec); locked {
		return &AccountLockedError{LockedUntil: until}
	}

	if len(oldPassword) > password.MaxLength || !e.verifier.Compare(rec, oldPassword) {
		e.metricInc(MetricPasswordChangeInvalidOld)
		return e.handleLoginError(ctx, rec.Identifier, rec, ErrInvalidCredentials)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := e.credentials.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return e.unavailable(ctx, "credential update", err)
	}
	if err := e.lockout.RecordSuccess(ctx, rec); err != nil {
		e.logger.WarnContext(ctx, "shopauth: failed to clear failure counter", "user_id", userID, "error", err)
	}

	revoked, err := e.revokeAll(ctx, userID, sessionID)
	if err != nil {
		e.logger.ErrorContext(ctx, "shopauth: password changed but other sessions were not revoked", "user_id", userID, "error", err)
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, internalaudit.Event{
		Type:      internalaudit.EventPasswordChanged,
		UserID:    userID,
		SessionID: sessionID,
		Success:   true,
		Metadata:  map[string]string{"revoked_sessions": fmt.Sprint(revoked)},
	})
	return nil
}

// UnlockAccount clears an account's lockout, its failure counter and its
// per-account login window.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return &ValidationError{Field: "user_id", Violations: []Violation{{Rule: "required", Message: "user id is required"}}}
	}
	rec, err := e.credentials.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrUnauthorized
		}
		return e.unavailable(ctx, "credential lookup", err)
	}
	if err := e.lockout.Unlock(ctx, userID); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrUnauthorized
		}
		return e.unavailable(ctx, "lockout reset", err)
	}
	e.clearLoginWindow(ctx, rec.Identifier)
	return nil
}
