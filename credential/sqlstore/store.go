// Package sqlstore is a database/sql credential.Repository. PostgreSQL runs
// through the pgx stdlib driver and SQLite through the pure-Go modernc driver.
// Failure counters are updated with single UPDATE ... RETURNING statements so
// concurrent logins never lose an increment.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/MrEthical07/shopauth/credential"
)

// Store implements credential.Repository over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open connects with the driver that matches dialect and verifies the
// connection. In-memory SQLite databases are pinned to one connection.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	if dialect == SQLite && (strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")) {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping credential store: %w", err)
	}
	return New(db, dialect), nil
}

// New wraps an existing pool.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectColumns = `user_id, identifier, password_hash, failed_attempt_count, locked_until, created_at, updated_at`

func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*credential.Record, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+selectColumns+` FROM credentials WHERE identifier = ?`), strings.ToLower(identifier))
	return scanRecord(row)
}

func (s *Store) FindByID(ctx context.Context, userID string) (*credential.Record, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+selectColumns+` FROM credentials WHERE user_id = ?`), userID)
	return scanRecord(row)
}

func (s *Store) Create(ctx context.Context, rec *credential.Record) error {
	now := s.now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO credentials (user_id, identifier, password_hash, failed_attempt_count, locked_until, created_at, updated_at)
		VALUES (?, ?, ?, 0, NULL, ?, ?)
	`), rec.UserID, strings.ToLower(rec.Identifier), rec.PasswordHash, createdAt.UnixMilli(), now.UnixMilli())
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return credential.ErrDuplicate
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE credentials SET password_hash = ?, updated_at = ? WHERE user_id = ?
	`), passwordHash, s.now().UnixMilli(), userID)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return requireRow(res)
}

func (s *Store) IncrementFailedAttempts(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		UPDATE credentials
		SET failed_attempt_count = failed_attempt_count + 1, updated_at = ?
		WHERE user_id = ?
		RETURNING failed_attempt_count
	`), s.now().UnixMilli(), userID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, credential.ErrNotFound
		}
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}
	return count, nil
}

func (s *Store) Lock(ctx context.Context, userID string, until time.Time) (bool, error) {
	now := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE credentials
		SET locked_until = ?, failed_attempt_count = 0, updated_at = ?
		WHERE user_id = ? AND (locked_until IS NULL OR locked_until <= ?)
	`), until.UnixMilli(), now, userID, now)
	if err != nil {
		return false, fmt.Errorf("lock credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("lock credential: %w", err)
	}
	return n == 1, nil
}

func (s *Store) ResetFailedAttempts(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE credentials
		SET failed_attempt_count = 0, locked_until = NULL, updated_at = ?
		WHERE user_id = ?
	`), s.now().UnixMilli(), userID)
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return requireRow(res)
}

func scanRecord(row *sql.Row) (*credential.Record, error) {
	var (
		rec                  credential.Record
		lockedUntil          sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&rec.UserID, &rec.Identifier, &rec.PasswordHash, &rec.FailedAttemptCount, &lockedUntil, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credential.ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	if lockedUntil.Valid {
		until := time.UnixMilli(lockedUntil.Int64).UTC()
		rec.LockedUntil = &until
	}
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rec, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return credential.ErrNotFound
	}
	return nil
}
