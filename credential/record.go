package credential

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Repository when no record matches.
	ErrNotFound = errors.New("credential not found")
	// ErrDuplicate is returned by Create when the identifier is already registered.
	ErrDuplicate = errors.New("credential identifier already exists")
	// ErrInvalidCredentials covers both unknown identifiers and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Record is the credential row of one account.
type Record struct {
	UserID             string
	Identifier         string
	PasswordHash       string
	FailedAttemptCount int
	LockedUntil        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// LockedAt reports whether the record carries a lockout that is still active at now.
func (r *Record) LockedAt(now time.Time) bool {
	return r != nil && r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// Repository is the credential store contract. Counter updates must be atomic
// in the backing store: concurrent IncrementFailedAttempts calls for one user
// must each observe a distinct value.
type Repository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Record, error)
	FindByID(ctx context.Context, userID string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error

	// IncrementFailedAttempts adds one failure and returns the new count.
	IncrementFailedAttempts(ctx context.Context, userID string) (int, error)
	// Lock sets LockedUntil and zeroes the failure counter unless a lock is
	// already active. It reports whether this call placed the lock.
	Lock(ctx context.Context, userID string, until time.Time) (bool, error)
	// ResetFailedAttempts zeroes the failure counter and clears LockedUntil.
	ResetFailedAttempts(ctx context.Context, userID string) error
}
