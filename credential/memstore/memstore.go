// Package memstore is an in-memory credential.Repository for tests and local
// runs. It is safe for concurrent use within one process only.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/shopauth/credential"
)

// Store keeps records keyed by user id with an identifier index.
type Store struct {
	mu           sync.Mutex
	byID         map[string]*credential.Record
	byIdentifier map[string]string
	now          func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:         make(map[string]*credential.Record),
		byIdentifier: make(map[string]string),
		now:          time.Now,
	}
}

func (s *Store) FindByIdentifier(_ context.Context, identifier string) (*credential.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIdentifier[strings.ToLower(identifier)]
	if !ok {
		return nil, credential.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) FindByID(_ context.Context, userID string) (*credential.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return nil, credential.ErrNotFound
	}
	return clone(rec), nil
}

func (s *Store) Create(_ context.Context, rec *credential.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(rec.Identifier)
	if _, exists := s.byIdentifier[key]; exists {
		return credential.ErrDuplicate
	}
	if _, exists := s.byID[rec.UserID]; exists {
		return credential.ErrDuplicate
	}

	stored := clone(rec)
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.byID[rec.UserID] = stored
	s.byIdentifier[key] = rec.UserID
	return nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	return s.mutate(userID, func(rec *credential.Record) {
		rec.PasswordHash = passwordHash
	})
}

func (s *Store) IncrementFailedAttempts(_ context.Context, userID string) (int, error) {
	var count int
	err := s.mutate(userID, func(rec *credential.Record) {
		rec.FailedAttemptCount++
		count = rec.FailedAttemptCount
	})
	return count, err
}

func (s *Store) Lock(_ context.Context, userID string, until time.Time) (bool, error) {
	var placed bool
	err := s.mutate(userID, func(rec *credential.Record) {
		if rec.LockedAt(s.now()) {
			return
		}
		u := until
		rec.LockedUntil = &u
		rec.FailedAttemptCount = 0
		placed = true
	})
	return placed, err
}

func (s *Store) ResetFailedAttempts(_ context.Context, userID string) error {
	return s.mutate(userID, func(rec *credential.Record) {
		rec.FailedAttemptCount = 0
		rec.LockedUntil = nil
	})
}

// SetClock overrides the store's notion of now for lockout comparisons.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) mutate(userID string, fn func(rec *credential.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return credential.ErrNotFound
	}
	fn(rec)
	rec.UpdatedAt = s.now()
	return nil
}

func clone(rec *credential.Record) *credential.Record {
	if rec == nil {
		return nil
	}
	out := *rec
	if rec.LockedUntil != nil {
		until := *rec.LockedUntil
		out.LockedUntil = &until
	}
	return &out
}
