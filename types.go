package shopauth

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/jwt"
)

// RegisterRequest is the input of [Engine.Register].
type RegisterRequest struct {
	Identifier string
	Password   string
}

// RegisterResult identifies the created account.
type RegisterResult struct {
	UserID     string
	Identifier string
	CreatedAt  time.Time
}

// LoginRequest is the input of [Engine.Login]. DeviceFingerprint is an opaque
// client-supplied value; empty disables the new-device check for this login.
type LoginRequest struct {
	Identifier        string
	Password          string
	DeviceFingerprint string
}

// TokenPair is a freshly issued access token and refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// DeviceStatus mirrors device.Status for callers that do not import device.
type DeviceStatus string

const (
	DeviceUnchecked DeviceStatus = "unchecked"
	DeviceKnown     DeviceStatus = "known"
	DeviceNew       DeviceStatus = "new"
	DeviceFirst     DeviceStatus = "first"
)

// LoginResult is returned by a successful [Engine.Login]. NewDevice is set
// when the fingerprint was not in the user's recent history; login is never
// denied on it.
type LoginResult struct {
	TokenPair
	UserID       string
	SessionID    string
	CSRFToken    string
	NewDevice    bool
	DeviceStatus DeviceStatus
}

// RefreshResult is returned by a successful [Engine.Refresh]. CSRFToken is the
// session's token, unchanged, so transports can re-issue the cookie.
type RefreshResult struct {
	TokenPair
	UserID    string
	SessionID string
	CSRFToken string
}

// AccessClaims are the verified claims of an access token.
type AccessClaims = jwt.AccessClaims

// SessionInfo describes one active session of a user.
type SessionInfo struct {
	SessionID string
	CreatedAt time.Time
	ExpiresAt time.Time
	Current   bool
}

// ResetNotifier delivers password reset tokens to the account owner. The
// engine calls it only for existing accounts, after the token is stored.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, userID, identifier, token string, expiresAt time.Time) error
}

// ResetNotifierFunc adapts a function to [ResetNotifier].
type ResetNotifierFunc func(ctx context.Context, userID, identifier, token string, expiresAt time.Time) error

func (f ResetNotifierFunc) NotifyPasswordReset(ctx context.Context, userID, identifier, token string, expiresAt time.Time) error {
	return f(ctx, userID, identifier, token, expiresAt)
}

// AuditEvent is one security audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

type (
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	SlogSink       = internalaudit.SlogSink
	SentrySink     = internalaudit.SentrySink
	MultiSink      = internalaudit.MultiSink
)

// Audit event types.
const (
	AuditLoginSuccess           = internalaudit.EventLoginSuccess
	AuditLoginFailure           = internalaudit.EventLoginFailure
	AuditAccountLocked          = internalaudit.EventAccountLocked
	AuditRegister               = internalaudit.EventRegister
	AuditRefresh                = internalaudit.EventRefresh
	AuditRefreshReuseDetected   = internalaudit.EventRefreshReuseDetected
	AuditLogout                 = internalaudit.EventLogout
	AuditLogoutAll              = internalaudit.EventLogoutAll
	AuditPasswordChanged        = internalaudit.EventPasswordChanged
	AuditPasswordResetRequested = internalaudit.EventPasswordResetRequested
	AuditPasswordResetCompleted = internalaudit.EventPasswordResetCompleted
	AuditNewDevice              = internalaudit.EventNewDevice
	AuditCSRFRejected           = internalaudit.EventCSRFRejected
	AuditRateLimited            = internalaudit.EventRateLimited
)

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSentrySink reports security events through hub (*sentry.Hub), or the
// current hub when hub is nil.
func NewSentrySink(hub internalaudit.EventCapturer) *SentrySink {
	return internalaudit.NewSentrySink(hub)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
