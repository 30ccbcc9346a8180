package shopauth

import (
	"context"
	"time"

	"github.com/MrEthical07/shopauth/credential"
	"github.com/MrEthical07/shopauth/internal/storecall"
)

// resilientRepository runs every credential store call under the engine's
// store policy. Create is never retried: a retry after a lost reply would
// report the first insert as a duplicate.
type resilientRepository struct {
	inner  credential.Repository
	policy storecall.Policy
	once   storecall.Policy
}

func newResilientRepository(inner credential.Repository, p storecall.Policy) *resilientRepository {
	once := p
	once.Retries = 0
	return &resilientRepository{inner: inner, policy: p, once: once}
}

func (r *resilientRepository) FindByIdentifier(ctx context.Context, identifier string) (*credential.Record, error) {
	var rec *credential.Record
	err := storecall.Do(ctx, r.policy, nil, func(ctx context.Context) error {
		var err error
		rec, err = r.inner.FindByIdentifier(ctx, identifier)
		return err
	})
	return rec, err
}

func (r *resilientRepository) FindByID(ctx context.Context, userID string) (*credential.Record, error) {
	var rec *credential.Record
	err := storecall.Do(ctx, r.policy, nil, func(ctx context.Context) error {
		var err error
		rec, err = r.inner.FindByID(ctx, userID)
		return err
	})
	return rec, err
}

func (r *resilientRepository) Create(ctx context.Context, rec *credential.Record) error {
	return storecall.Do(ctx, r.once, nil, func(ctx context.Context) error {
		return r.inner.Create(ctx, rec)
	})
}

func (r *resilientRepository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	return storecall.Do(ctx, r.policy, nil, func(ctx context.Context) error {
		return r.inner.UpdatePasswordHash(ctx, userID, passwordHash)
	})
}

// IncrementFailedAttempts may over-count by one when a reply is lost and the
// call retried. That only brings a lockout closer.
func (r *resilientRepository) IncrementFailedAttempts(ctx context.Context, userID string) (int, error) {
	var n int
	err := storecall.Do(ctx, r.policy, nil, func(ctx context.Context) error {
		var err error
		n, err = r.inner.IncrementFailedAttempts(ctx, userID)
		return err
	})
	return n, err
}

func (r *resilientRepository) Lock(ctx context.Context, userID string, until time.Time) (bool, error) {
	var placed bool
	err := storecall.Do(ctx, r.policy, nil, func(ctx context.Context) error {
		var err error
		placed, err = r.inner.Lock(ctx, userID, until)
		return err
	})
	return placed, err
}

func (r *resilientRepository) ResetFailedAttempts(ctx context.Context, userID string) error {
	return storecall.Do(ctx, r.policy, nil, func(ctx context.Context) error {
		return r.inner.ResetFailedAttempts(ctx, userID)
	})
}
