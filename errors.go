package shopauth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/shopauth/credential"
	"github.com/MrEthical07/shopauth/csrf"
	"github.com/MrEthical07/shopauth/internal/storecall"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/session"
)

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong passwords.
	ErrInvalidCredentials = credential.ErrInvalidCredentials
	// ErrUnauthorized is returned when a request carries no usable credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when an authenticated caller may not act on a resource.
	ErrForbidden = errors.New("forbidden")
	// ErrAccountLocked is matched by *AccountLockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrRateLimited is matched by *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrValidation is matched by *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrAccountExists is returned by Register for a taken identifier.
	ErrAccountExists = errors.New("account already exists")
	// ErrTokenReuseDetected means a rotated refresh token was presented again;
	// the whole session has been revoked.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrRefreshInvalid is returned for malformed refresh tokens.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrResetTokenInvalid covers unknown, expired, and already used reset tokens.
	ErrResetTokenInvalid = errors.New("password reset token invalid")
	// ErrServiceUnavailable is returned when a backing store failed and the
	// operation fails closed.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")

	ErrTokenExpired          = jwt.ErrTokenExpired
	ErrTokenInvalidSignature = jwt.ErrTokenInvalidSignature
	ErrTokenInvalid          = jwt.ErrTokenInvalid

	ErrSessionNotFound = session.ErrSessionNotFound
	ErrSessionRevoked  = session.ErrSessionRevoked

	ErrCsrfTokenMissing  = csrf.ErrCsrfTokenMissing
	ErrCsrfTokenMismatch = csrf.ErrCsrfTokenMismatch
)

// Kind groups errors by how a transport should answer them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindRateLimit
	KindAccountLocked
	KindConflict
	KindTokenReuse
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindRateLimit:
		return "rate_limit"
	case KindAccountLocked:
		return "account_locked"
	case KindConflict:
		return "conflict"
	case KindTokenReuse:
		return "token_reuse"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// KindOf classifies err. Unrecognized errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrAccountLocked):
		return KindAccountLocked
	case errors.Is(err, ErrAccountExists):
		return KindConflict
	case errors.Is(err, ErrTokenReuseDetected):
		return KindTokenReuse
	case errors.Is(err, ErrCsrfTokenMissing),
		errors.Is(err, ErrCsrfTokenMismatch),
		errors.Is(err, ErrForbidden):
		return KindAuthorization
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, storecall.ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenInvalidSignature),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionRevoked),
		errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrResetTokenInvalid):
		return KindAuthentication
	default:
		return KindInternal
	}
}

// Violation is one failed input rule.
type Violation = password.Violation

// ValidationError lists every rule the input broke.
type ValidationError struct {
	Field      string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	rules := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		rules = append(rules, v.Rule)
	}
	return "validation failed: " + e.Field + " (" + strings.Join(rules, ", ") + ")"
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RateLimitError reports a denied request and when the window reopens.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "rate limited: " + e.Action + ", retry after " + e.RetryAfter.String()
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// AccountLockedError reports an active lockout.
type AccountLockedError struct {
	LockedUntil time.Time
}

func (e *AccountLockedError) Error() string {
	return "account locked until " + e.LockedUntil.UTC().Format(time.RFC3339)
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
