package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/aqryuz/authcore/internal"
	"github.com/redis/go-redis/v9"
)

// Redis stores denylist entries as plain keys that Redis expires at the
// token's own expiry. Sweep is a no-op.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient, prefix string, now func() time.Time) *Redis {
	if prefix == "" {
		prefix = "rv"
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, prefix: prefix, now: now}
}

func (r *Redis) key(token string) string {
	return r.prefix + ":" + internal.HashToken(token)
}

func (r *Redis) Blacklist(ctx context.Context, token string, expiresAt time.Time) error {
	if token == "" || !expiresAt.After(r.now()) {
		return nil
	}
	key := r.key(token)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, "1", 0)
		pipe.PExpireAt(ctx, key, expiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

func (r *Redis) Sweep(context.Context) (int, error) {
	return 0, nil
}

func (r *Redis) Remove(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
