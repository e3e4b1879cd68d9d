// Package postgres implements credential.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aqryuz/authcore/credential"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the table layout this store expects. Migrations are owned by the
// deploying service; the constant exists for bootstrapping and tests.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	username        TEXT NOT NULL UNIQUE,
	email           TEXT UNIQUE,
	password_hash   TEXT NOT NULL,
	totp_secret     TEXT NOT NULL DEFAULT '',
	totp_enabled    BOOLEAN NOT NULL DEFAULT FALSE,
	enabled         BOOLEAN NOT NULL DEFAULT TRUE,
	roles           TEXT[] NOT NULL DEFAULT '{}',
	failed_attempts INTEGER NOT NULL DEFAULT 0,
	locked          BOOLEAN NOT NULL DEFAULT FALSE,
	locked_until    TIMESTAMPTZ,
	lockout_cycles  INTEGER NOT NULL DEFAULT 0,
	last_lockout_at TIMESTAMPTZ,
	last_login_at   TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const userColumns = `id, username, COALESCE(email, ''), password_hash, totp_secret, totp_enabled, enabled, roles,
	failed_attempts, locked, locked_until, lockout_cycles, last_lockout_at, last_login_at, created_at`

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Store is a PostgreSQL-backed credential.Store.
type Store struct {
	db DB
}

var _ credential.Store = (*Store)(nil)

func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return pool, nil
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) FindByIdentifier(ctx context.Context, usernameOrEmail string) (*credential.User, error) {
	id := strings.ToLower(strings.TrimSpace(usernameOrEmail))
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = $1 OR lower(email) = $1 LIMIT 1`, id)
	return scanUser(row)
}

func (s *Store) FindByID(ctx context.Context, userID string) (*credential.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

func (s *Store) Create(ctx context.Context, user *credential.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, totp_secret, totp_enabled, enabled, roles, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.TOTPSecret,
		user.TOTPEnabled, user.Enabled, roles, user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return credential.ErrDuplicate
		}
		return fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return nil
}

// UpdateLockState locks the user row with SELECT ... FOR UPDATE, applies fn
// and writes the result inside the same transaction.
func (s *Store) UpdateLockState(ctx context.Context, userID string, fn func(credential.LockState) credential.LockState) (credential.LockState, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return credential.LockState{}, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		current       credential.LockState
		lockedUntil   *time.Time
		lastLockoutAt *time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT failed_attempts, locked, locked_until, lockout_cycles, last_lockout_at
		FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&current.FailedAttempts, &current.Locked, &lockedUntil, &current.LockoutCycles, &lastLockoutAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credential.LockState{}, credential.ErrNotFound
		}
		return credential.LockState{}, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	current.LockedUntil = deref(lockedUntil)
	current.LastLockoutAt = deref(lastLockoutAt)

	next := fn(current)

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET failed_attempts = $2, locked = $3, locked_until = $4, lockout_cycles = $5, last_lockout_at = $6
		WHERE id = $1`,
		userID, next.FailedAttempts, next.Locked, nullable(next.LockedUntil), next.LockoutCycles, nullable(next.LastLockoutAt),
	)
	if err != nil {
		return credential.LockState{}, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return credential.LockState{}, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return next, nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
}

func (s *Store) UpdateTOTP(ctx context.Context, userID, secret string, enabled bool) error {
	return s.exec(ctx, `UPDATE users SET totp_secret = $2, totp_enabled = $3 WHERE id = $1`, userID, secret, enabled)
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*credential.User, error) {
	var (
		u             credential.User
		lockedUntil   *time.Time
		lastLockoutAt *time.Time
		lastLoginAt   *time.Time
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.TOTPSecret, &u.TOTPEnabled, &u.Enabled, &u.Roles,
		&u.Lock.FailedAttempts, &u.Lock.Locked, &lockedUntil, &u.Lock.LockoutCycles, &lastLockoutAt,
		&lastLoginAt, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credential.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	u.Lock.LockedUntil = deref(lockedUntil)
	u.Lock.LastLockoutAt = deref(lastLockoutAt)
	u.LastLoginAt = deref(lastLoginAt)
	return &u, nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func nullable(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
