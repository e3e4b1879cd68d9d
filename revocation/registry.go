// Package revocation keeps a denylist of access tokens that were revoked
// before their natural expiry.
//
// Entries are keyed by the SHA-256 of the token and live exactly until the
// token's own expiry; after that the signature check rejects the token
// anyway, so keeping the entry longer buys nothing.
package revocation

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("revocation backend unavailable")

// Registry is implemented by Memory and Redis.
type Registry interface {
	Blacklist(ctx context.Context, token string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	Sweep(ctx context.Context) (int, error)
}
