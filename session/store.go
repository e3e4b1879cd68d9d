package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aqryuz/authcore/fingerprint"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrExpired     = errors.New("session expired")
	ErrRevoked     = errors.New("session revoked")
	ErrUnavailable = errors.New("session store unavailable")
)

// Policy decides what happens when a user reaches MaxPerUser.
type Policy string

const (
	// PolicyMultiDevice evicts the least recently active session.
	PolicyMultiDevice Policy = "multi_device"
	// PolicySingleDevice revokes every existing session.
	PolicySingleDevice Policy = "single_device"
)

type Config struct {
	Prefix        string
	TTL           time.Duration
	RememberMeTTL time.Duration
	MaxPerUser    int
	Policy        Policy
	Retention     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Prefix:        "us",
		TTL:           24 * time.Hour,
		RememberMeTTL: 30 * 24 * time.Hour,
		MaxPerUser:    5,
		Policy:        PolicyMultiDevice,
		Retention:     7 * 24 * time.Hour,
	}
}

// CreateParams describes a new session. ID is the session id carried in the
// access token.
type CreateParams struct {
	ID         string
	UserID     string
	RememberMe bool
	Client     fingerprint.Context
}

// Registry is a Redis-backed session registry.
type Registry struct {
	redis redis.UniversalClient
	cfg   Config
	now   func() time.Time
}

func NewRegistry(client redis.UniversalClient, cfg Config, now func() time.Time) (*Registry, error) {
	if client == nil {
		return nil, errors.New("session registry requires a redis client")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "us"
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be > 0")
	}
	if cfg.RememberMeTTL <= 0 {
		cfg.RememberMeTTL = cfg.TTL
	}
	if cfg.MaxPerUser < 0 {
		return nil, errors.New("session MaxPerUser must be >= 0")
	}
	switch cfg.Policy {
	case "":
		cfg.Policy = PolicyMultiDevice
	case PolicyMultiDevice, PolicySingleDevice:
	default:
		return nil, errors.New("session Policy must be multi_device or single_device")
	}
	if cfg.Retention < 0 {
		return nil, errors.New("session Retention must be >= 0")
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{redis: client, cfg: cfg, now: now}, nil
}

func (r *Registry) key(id string) string         { return r.cfg.Prefix + ":sess:" + id }
func (r *Registry) userKey(userID string) string { return r.cfg.Prefix + ":user:" + userID }
func (r *Registry) expiryKey() string            { return r.cfg.Prefix + ":expiry" }

// Create registers a session, enforcing the per-user limit atomically. The
// ids of sessions revoked to make room are returned.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*Session, []string, error) {
	if p.ID == "" || p.UserID == "" {
		return nil, nil, errors.New("session requires id and user id")
	}

	now := r.now()
	ttl := r.cfg.TTL
	if p.RememberMe {
		ttl = r.cfg.RememberMeTTL
	}
	sess := &Session{
		ID:           p.ID,
		UserID:       p.UserID,
		Device:       fingerprint.Detect(p.Client.UserAgent),
		IPAddress:    p.Client.IP,
		UserAgent:    p.Client.UserAgent,
		Location:     fingerprint.Location(p.Client.IP),
		Active:       true,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
	}

	single := "0"
	if r.cfg.Policy == PolicySingleDevice {
		single = "1"
	}
	args := []interface{}{
		r.cfg.Prefix,
		sess.ID,
		r.cfg.MaxPerUser,
		single,
		now.UnixMilli(),
		r.cfg.Retention.Milliseconds(),
		sess.ExpiresAt.UnixMilli(),
	}
	args = append(args, sess.fields()...)

	evicted, err := createLua.Run(ctx, r.redis,
		[]string{r.userKey(sess.UserID), r.expiryKey(), r.key(sess.ID)},
		args...,
	).StringSlice()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return sess, evicted, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	h, err := r.redis.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sess, ok := fromHash(h)
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// ListActive returns the user's active sessions, most recent activity first.
func (r *Registry) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := r.redis.ZRevRange(ctx, r.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := r.now()
	out := make([]*Session, 0, len(ids))
	for _, cmd := range cmds {
		sess, ok := fromHash(cmd.Val())
		if !ok || !sess.Active || sess.Expired(now) {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// Touch records activity on an active, unexpired session. An expired
// session is retired on the spot.
func (r *Registry) Touch(ctx context.Context, id string) error {
	res, err := touchLua.Run(ctx, r.redis, []string{r.key(id)}, r.cfg.Prefix, id, r.now().UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return ErrExpired
	case -2:
		return ErrRevoked
	default:
		return ErrNotFound
	}
}

// Revoke deactivates one session. Revoking an already revoked session is a
// no-op; an unknown id is ErrNotFound.
func (r *Registry) Revoke(ctx context.Context, id, actor, reason string) error {
	res, err := revokeLua.Run(ctx, r.redis, []string{r.key(id)},
		r.cfg.Prefix, id, r.now().UnixMilli(), actor, reason,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res < 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAllOthers revokes every active session of userID except exceptID.
func (r *Registry) RevokeAllOthers(ctx context.Context, userID, exceptID, actor string) (int, error) {
	return r.revokeUser(ctx, userID, exceptID, actor, ReasonOtherSessions)
}

func (r *Registry) RevokeAll(ctx context.Context, userID, actor, reason string) (int, error) {
	return r.revokeUser(ctx, userID, "", actor, reason)
}

func (r *Registry) revokeUser(ctx context.Context, userID, exceptID, actor, reason string) (int, error) {
	n, err := revokeUserLua.Run(ctx, r.redis, []string{r.userKey(userID)},
		r.cfg.Prefix, r.now().UnixMilli(), actor, reason, exceptID,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// SweepExpired revokes up to limit sessions whose expiry has passed.
func (r *Registry) SweepExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	n, err := sweepLua.Run(ctx, r.redis, []string{r.expiryKey()}, r.cfg.Prefix, r.now().UnixMilli(), limit).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (r *Registry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
