package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// Hasher hashes and verifies passwords. [password.Argon2] satisfies it.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Gate runs after lookup and before the comparison. A non-nil error aborts the
// login, but the comparison still runs against the dummy hash first.
type Gate func(rec *Record) error

// Verifier checks passwords so that unknown identifiers, gated accounts, and
// wrong passwords all cost one full hash computation.
type Verifier struct {
	repo      Repository
	hasher    Hasher
	dummyHash string
}

// NewVerifier precomputes the dummy hash with the same hasher, so its cost
// profile matches real records.
func NewVerifier(repo Repository, hasher Hasher) (*Verifier, error) {
	if repo == nil || hasher == nil {
		return nil, errors.New("credential verifier requires repository and hasher")
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(base64.RawURLEncoding.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("precompute dummy hash: %w", err)
	}

	return &Verifier{repo: repo, hasher: hasher, dummyHash: dummy}, nil
}

// VerifyPassword returns the record when plaintext matches. Unknown identifier
// and mismatch both fail with ErrInvalidCredentials. Gates run in order
// between lookup and comparison; the first error aborts.
//
// The record is returned alongside gate and mismatch errors so the caller can
// account the failure. Repository errors other than ErrNotFound are returned
// as-is after the dummy comparison.
func (v *Verifier) VerifyPassword(ctx context.Context, identifier, plaintext string, gates ...Gate) (*Record, error) {
	rec, err := v.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		v.burn(plaintext)
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	for _, gate := range gates {
		if gateErr := gate(rec); gateErr != nil {
			v.burn(plaintext)
			return rec, gateErr
		}
	}

	ok, err := v.hasher.Verify(plaintext, rec.PasswordHash)
	if err != nil || !ok {
		return rec, ErrInvalidCredentials
	}
	return rec, nil
}

// Compare checks plaintext against rec, using the dummy hash when rec is nil.
func (v *Verifier) Compare(rec *Record, plaintext string) bool {
	if rec == nil {
		v.burn(plaintext)
		return false
	}
	ok, err := v.hasher.Verify(plaintext, rec.PasswordHash)
	return err == nil && ok
}

func (v *Verifier) burn(plaintext string) {
	_, _ = v.hasher.Verify(plaintext, v.dummyHash)
}
