package credential

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("credential: user not found")
	// ErrDuplicate is returned when a username or email is already taken.
	ErrDuplicate = errors.New("credential: duplicate identifier")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("credential: store unavailable")
)

// LockState is the failure history consulted by the lockout policy.
//
// FailedAttempts, Locked and LockedUntil describe the current lockout.
// LockoutCycles and LastLockoutAt survive a successful login so that
// progressive lockout can escalate across consecutive cycles.
type LockState struct {
	FailedAttempts int
	Locked         bool
	LockedUntil    time.Time
	LockoutCycles  int
	LastLockoutAt  time.Time
}

// User is the persisted account record.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	TOTPSecret   string
	TOTPEnabled  bool
	Enabled      bool
	Roles        []string
	Lock         LockState
	LastLoginAt  time.Time
	CreatedAt    time.Time
}

// Clone returns a deep copy so callers never share the Roles slice with a store.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Roles != nil {
		out.Roles = append([]string(nil), u.Roles...)
	}
	return &out
}

// Store persists user records.
//
// UpdateLockState must run fn under a per-user exclusive lock (row lock,
// compare-and-swap or mutex) so concurrent failures are never under-counted.
// fn receives the current state and returns the state to persist.
type Store interface {
	FindByIdentifier(ctx context.Context, usernameOrEmail string) (*User, error)
	FindByID(ctx context.Context, userID string) (*User, error)
	Create(ctx context.Context, user *User) error
	UpdateLockState(ctx context.Context, userID string, fn func(LockState) LockState) (LockState, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	UpdateTOTP(ctx context.Context, userID, secret string, enabled bool) error
}
