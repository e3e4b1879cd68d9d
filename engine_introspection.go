package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/aqryuz/authcore/credential"
	"github.com/aqryuz/authcore/session"
)

// LockStatus describes the lockout state of one account.
type LockStatus struct {
	Locked         bool
	Remaining      time.Duration
	FailedAttempts int
	LockCycles     int
}

// ActiveSessionCount returns how many sessions userID currently holds.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	list, err := e.ListSessions(ctx, userID, "")
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// GetSessionInfo reads one session, active or not.
func (e *Engine) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if !e.ready() || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, storageErr(err)
	}
	info := toSessionInfo(sess, "")
	return &info, nil
}

// LockStatus reports whether the account named by identifier is locked and
// for how much longer.
func (e *Engine) LockStatus(ctx context.Context, identifier string) (LockStatus, error) {
	if !e.ready() {
		return LockStatus{}, ErrEngineNotReady
	}

	user, err := e.creds.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return LockStatus{}, ErrUserNotFound
		}
		return LockStatus{}, storageErr(err)
	}

	now := e.now()
	return LockStatus{
		Locked:         e.lockout.IsLocked(user.Lock, now),
		Remaining:      e.lockout.Remaining(user.Lock, now),
		FailedAttempts: user.Lock.FailedAttempts,
		LockCycles:     user.Lock.LockoutCycles,
	}, nil
}

// Health pings Redis. It never returns an error; an unreachable server is
// reported through RedisAvailable.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.redis == nil {
		return HealthStatus{}
	}
	if e.sessions != nil {
		latency, err := e.sessions.Ping(ctx)
		return HealthStatus{RedisAvailable: err == nil, RedisLatency: latency}
	}

	start := time.Now()
	err := e.redis.Ping(ctx).Err()
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   time.Since(start),
	}
}
