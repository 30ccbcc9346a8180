package limiters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/MrEthical07/shopauth/credential"
)

// LockoutConfig holds the cumulative lockout policy.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// LockoutRepository is the slice of credential.Repository the lockout needs.
type LockoutRepository interface {
	FindByID(ctx context.Context, userID string) (*credential.Record, error)
	IncrementFailedAttempts(ctx context.Context, userID string) (int, error)
	Lock(ctx context.Context, userID string, until time.Time) (bool, error)
	ResetFailedAttempts(ctx context.Context, userID string) error
}

// LockState is the outcome of recording one failed attempt.
type LockState struct {
	Failures int
	Locked   bool
	Until    time.Time
}

// Lockout tracks consecutive failures per account in the credential store and
// locks the account once the threshold is reached. The counter is independent
// of the request-volume windows in internal/rate.
type Lockout struct {
	repo   LockoutRepository
	config LockoutConfig
	now    func() time.Time
}

// NewLockout creates a lockout over repo.
func NewLockout(repo LockoutRepository, cfg LockoutConfig) *Lockout {
	return &Lockout{repo: repo, config: cfg, now: time.Now}
}

// SetClock replaces the time source. It must be called before first use.
func (l *Lockout) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// Enabled reports whether a threshold is configured.
func (l *Lockout) Enabled() bool {
	return l != nil && l.config.Threshold > 0
}

// ActiveUntil returns the end of the record's lockout when one is in force.
func (l *Lockout) ActiveUntil(rec *credential.Record) (time.Time, bool) {
	if !l.Enabled() || !rec.LockedAt(l.now()) {
		return time.Time{}, false
	}
	return *rec.LockedUntil, true
}

// RecordFailedAttempt counts one failure. When the count reaches the
// threshold it locks the account until now+Duration; the repository zeroes the
// counter in the same statement.
func (l *Lockout) RecordFailedAttempt(ctx context.Context, userID string) (LockState, error) {
	if !l.Enabled() || userID == "" {
		return LockState{}, nil
	}

	count, err := l.repo.IncrementFailedAttempts(ctx, userID)
	if err != nil {
		return LockState{}, err
	}

	state := LockState{Failures: count}
	if count < l.config.Threshold {
		return state, nil
	}

	until := l.now().Add(l.config.Duration)
	placed, err := l.repo.Lock(ctx, userID, until)
	if err != nil {
		return state, err
	}
	if !placed {
		// A concurrent attempt locked first; report its deadline.
		rec, err := l.repo.FindByID(ctx, userID)
		if err != nil {
			return state, err
		}
		if rec.LockedUntil != nil {
			until = *rec.LockedUntil
		}
	}
	state.Locked = true
	state.Until = until
	return state, nil
}

// RecordUnknownAttempt issues the same counter write as RecordFailedAttempt
// against a user id no account can hold, so a failure for an unknown
// identifier costs the store round trip a wrong password does. A missing row
// is the expected outcome.
func (l *Lockout) RecordUnknownAttempt(ctx context.Context, identifier string) error {
	if !l.Enabled() {
		return nil
	}
	_, err := l.repo.IncrementFailedAttempts(ctx, unknownUserID(identifier))
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		return err
	}
	return nil
}

func unknownUserID(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return "unknown:" + hex.EncodeToString(sum[:16])
}

// RecordSuccess clears failure state. It skips the write when rec shows
// nothing to clear.
func (l *Lockout) RecordSuccess(ctx context.Context, rec *credential.Record) error {
	if !l.Enabled() || rec == nil {
		return nil
	}
	if rec.FailedAttemptCount == 0 && rec.LockedUntil == nil {
		return nil
	}
	return l.repo.ResetFailedAttempts(ctx, rec.UserID)
}

// Unlock clears the lockout regardless of its remaining duration.
func (l *Lockout) Unlock(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("lockout: empty user id")
	}
	return l.repo.ResetFailedAttempts(ctx, userID)
}
