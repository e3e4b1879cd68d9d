package credential

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. A single mutex serialises writes, which
// satisfies the per-user exclusivity UpdateLockState requires.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]*User
	byUsername map[string]string
	byEmail    map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		users:      map[string]*User{},
		byUsername: map[string]string{},
		byEmail:    map[string]string{},
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (m *Memory) FindByIdentifier(_ context.Context, usernameOrEmail string) (*User, error) {
	key := normalize(usernameOrEmail)

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUsername[key]
	if !ok {
		id, ok = m.byEmail[key]
	}
	if !ok {
		return nil, ErrNotFound
	}
	return m.users[id].Clone(), nil
}

func (m *Memory) FindByID(_ context.Context, userID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

// Create stores a copy of user. An empty ID is filled with a UUID and an
// empty CreatedAt with the current time.
func (m *Memory) Create(_ context.Context, user *User) error {
	if user == nil {
		return ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	uname := normalize(user.Username)
	email := normalize(user.Email)
	if _, ok := m.byUsername[uname]; ok {
		return ErrDuplicate
	}
	if email != "" {
		if _, ok := m.byEmail[email]; ok {
			return ErrDuplicate
		}
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	m.users[user.ID] = user.Clone()
	m.byUsername[uname] = user.ID
	if email != "" {
		m.byEmail[email] = user.ID
	}
	return nil
}

func (m *Memory) UpdateLockState(_ context.Context, userID string, fn func(LockState) LockState) (LockState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return LockState{}, ErrNotFound
	}
	u.Lock = fn(u.Lock)
	return u.Lock, nil
}

func (m *Memory) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	return m.mutate(userID, func(u *User) { u.LastLoginAt = at })
}

func (m *Memory) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	return m.mutate(userID, func(u *User) { u.PasswordHash = hash })
}

func (m *Memory) UpdateTOTP(_ context.Context, userID, secret string, enabled bool) error {
	return m.mutate(userID, func(u *User) {
		u.TOTPSecret = secret
		u.TOTPEnabled = enabled
	})
}

func (m *Memory) mutate(userID string, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	return nil
}
