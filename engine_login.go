package shopauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/shopauth/credential"
	"github.com/MrEthical07/shopauth/csrf"
	"github.com/MrEthical07/shopauth/device"
	internalaudit "github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/refresh"
	"github.com/MrEthical07/shopauth/session"
)

// Login authenticates a password and opens a session.
//
// Order: per-IP and per-account rate limits (every attempt counts), lookup,
// lockout gate, one password comparison. Unknown identifiers, locked
// accounts, and wrong passwords each cost exactly one hash computation. A
// wrong password increments the account's failure counter; reaching the
// lockout threshold returns *AccountLockedError for that same attempt. An
// unknown identifier makes the same counter write against a row that does
// not exist.
//
// Errors: *RateLimitError, *AccountLockedError, ErrInvalidCredentials,
// ErrServiceUnavailable.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := e.now()
	defer func() { e.metrics.Observe(MetricLoginLatency, e.now().Sub(start)) }()

	identifier := normalizeIdentifier(req.Identifier)
	ip := clientIPOrUnknown(ctx)

	if err := e.checkRate(ctx, actionLoginIP, ip, e.config.RateLimit.Login, MetricLoginRateLimited); err != nil {
		return nil, err
	}
	if err := e.checkRate(ctx, actionLoginAccount, identifier, e.config.RateLimit.Login, MetricLoginRateLimited); err != nil {
		return nil, err
	}

	plaintext := req.Password
	if len(plaintext) > password.MaxLength {
		// Never hand unbounded input to the hasher. The dummy comparison keeps
		// the cost profile of a normal failure.
		e.verifier.Compare(nil, plaintext[:password.MaxLength])
		e.loginFailed(ctx, "", "password_too_long")
		return nil, ErrInvalidCredentials
	}

	rec, err := e.verifier.VerifyPassword(ctx, identifier, plaintext, e.lockoutGate)
	if err != nil {
		return nil, e.handleLoginError(ctx, identifier, rec, err)
	}

	if err := e.lockout.RecordSuccess(ctx, rec); err != nil {
		e.logger.WarnContext(ctx, "shopauth: failed to clear failure counter", "user_id", rec.UserID, "error", err)
	}
	e.upgradeHash(ctx, rec, plaintext)

	deviceResult := e.checkDevice(ctx, rec.UserID, req.DeviceFingerprint)

	issued, err := e.openSession(ctx, rec.UserID, deviceResult.FingerprintHash)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, internalaudit.Event{
		Type:      internalaudit.EventLoginSuccess,
		UserID:    rec.UserID,
		SessionID: issued.SessionID,
		Success:   true,
		Metadata:  map[string]string{"device": deviceResult.Status.String()},
	})

	return &LoginResult{
		TokenPair:    issued.TokenPair,
		UserID:       rec.UserID,
		SessionID:    issued.SessionID,
		CSRFToken:    issued.CSRFToken,
		NewDevice:    deviceResult.NewDevice(),
		DeviceStatus: deviceStatus(deviceResult.Status),
	}, nil
}

// lockoutGate refuses locked accounts before the comparison runs.
func (e *Engine) lockoutGate(rec *credential.Record) error {
	if until, locked := e.lockout.ActiveUntil(rec); locked {
		return &AccountLockedError{LockedUntil: until}
	}
	return nil
}

// handleLoginError accounts a failed authentication. Unknown identifiers and
// wrong passwords both make one failure-counter write.
func (e *Engine) handleLoginError(ctx context.Context, identifier string, rec *credential.Record, err error) error {
	var locked *AccountLockedError
	switch {
	case errors.As(err, &locked):
		e.metricInc(MetricLoginLocked)
		e.loginFailed(ctx, rec.UserID, "account_locked")
		return err

	case errors.Is(err, ErrInvalidCredentials) && rec == nil:
		if lockErr := e.lockout.RecordUnknownAttempt(ctx, identifier); lockErr != nil {
			return e.unavailable(ctx, "lockout", lockErr)
		}
		e.loginFailed(ctx, "", "unknown_identifier")
		return ErrInvalidCredentials

	case errors.Is(err, ErrInvalidCredentials):
		state, lockErr := e.lockout.RecordFailedAttempt(ctx, rec.UserID)
		if lockErr != nil {
			return e.unavailable(ctx, "lockout", lockErr)
		}
		if state.Locked {
			e.metricInc(MetricAccountLocked)
			e.logger.WarnContext(ctx, "shopauth: account locked",
				"user_id", rec.UserID,
				"ip", ClientIPFromContext(ctx),
				"locked_until", state.Until,
			)
			e.emitAudit(ctx, internalaudit.Event{
				Type:   internalaudit.EventAccountLocked,
				UserID: rec.UserID,
				Reason: "failure_threshold",
				Metadata: map[string]string{
					"locked_until": state.Until.UTC().Format(time.RFC3339),
				},
			})
			return &AccountLockedError{LockedUntil: state.Until}
		}
		e.loginFailed(ctx, rec.UserID, "invalid_password")
		return ErrInvalidCredentials

	default:
		return e.unavailable(ctx, "credential lookup", err)
	}
}

func (e *Engine) loginFailed(ctx context.Context, userID, reason string) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, internalaudit.Event{
		Type:   internalaudit.EventLoginFailure,
		UserID: userID,
		Reason: reason,
	})
}

// upgradeHash rehashes a verified password whose stored cost profile is
// older than the configured one. Best effort.
func (e *Engine) upgradeHash(ctx context.Context, rec *credential.Record, plaintext string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(rec.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	if err := e.credentials.UpdatePasswordHash(ctx, rec.UserID, hash); err != nil {
		e.logger.WarnContext(ctx, "shopauth: password hash upgrade failed", "user_id", rec.UserID, "error", err)
		return
	}
	e.metricInc(MetricPasswordRehashed)
}

func (e *Engine) checkDevice(ctx context.Context, userID, fingerprint string) device.Result {
	if e.devices == nil {
		return device.Result{Status: device.StatusUnchecked}
	}

	res := e.devices.Check(ctx, userID, fingerprint)
	switch {
	case res.Status == device.StatusUnchecked && fingerprint != "":
		e.metricInc(MetricDeviceCheckSkipped)
	case res.NewDevice():
		e.metricInc(MetricNewDevice)
		e.emitAudit(ctx, internalaudit.Event{
			Type:     internalaudit.EventNewDevice,
			UserID:   userID,
			Success:  true,
			Metadata: map[string]string{"fingerprint": res.FingerprintHash[:16]},
		})
	}
	return res
}

func deviceStatus(s device.Status) DeviceStatus {
	switch s {
	case device.StatusKnown:
		return DeviceKnown
	case device.StatusNewDevice:
		return DeviceNew
	case device.StatusFirstDevice:
		return DeviceFirst
	default:
		return DeviceUnchecked
	}
}

type issuedSession struct {
	TokenPair
	SessionID string
	CSRFToken string
}

// openSession mints the session id, refresh secret and CSRF token, stores the
// session in one transaction, and signs the access token.
func (e *Engine) openSession(ctx context.Context, userID, fingerprintHash string) (*issuedSession, error) {
	sid, err := refresh.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	token, err := refresh.New(sid)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	csrfToken, err := csrf.NewToken()
	if err != nil {
		return nil, fmt.Errorf("csrf token: %w", err)
	}

	now := e.now()
	ttl := e.config.Session.RefreshTTL
	expiresAt := now.Add(ttl)
	sess := &session.Session{
		SessionID:         sid,
		UserID:            userID,
		DeviceFingerprint: fingerprintHash,
		CSRFToken:         csrfToken,
		RefreshHash:       token.Hash(),
		CreatedAt:         now.UnixMilli(),
		ExpiresAt:         expiresAt.UnixMilli(),
	}
	if err := e.callOnce(ctx, func(ctx context.Context) error { return e.sessions.Create(ctx, sess, ttl) }); err != nil {
		if errors.Is(err, session.ErrSessionExists) {
			return nil, fmt.Errorf("session id collision: %w", err)
		}
		return nil, e.unavailable(ctx, "session create", err)
	}

	access, accessExp, err := e.jwtManager.CreateAccess(userID, sid)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	encoded, err := token.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode refresh token: %w", err)
	}

	e.metricInc(MetricSessionCreated)
	return &issuedSession{
		TokenPair: TokenPair{
			AccessToken:      access,
			AccessExpiresAt:  accessExp,
			RefreshToken:     encoded,
			RefreshExpiresAt: expiresAt,
		},
		SessionID: sid,
		CSRFToken: csrfToken,
	}, nil
}
