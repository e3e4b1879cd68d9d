package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aqryuz/authcore/fingerprint"
	"github.com/aqryuz/authcore/internal"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound       = errors.New("refresh token not found")
	ErrExpired        = errors.New("refresh token expired")
	ErrDeviceMismatch = errors.New("refresh token device mismatch")
	ErrUnavailable    = errors.New("refresh store unavailable")
)

// Config holds refresh-token lifetimes and limits.
type Config struct {
	Prefix        string
	TTL           time.Duration
	RememberMeTTL time.Duration
	// MaxPerUser caps active tokens per user; the oldest by creation time
	// is evicted first. Zero disables the cap.
	MaxPerUser int
	// Retention keeps inactive records readable for this long after
	// their expiry.
	Retention time.Duration
	// EnforceFingerprint rejects and retires a token presented from a
	// different device. When false a mismatch is only reported.
	EnforceFingerprint bool
}

func DefaultConfig() Config {
	return Config{
		Prefix:        "rt",
		TTL:           24 * time.Hour,
		RememberMeTTL: 30 * 24 * time.Hour,
		MaxPerUser:    5,
		Retention:     7 * 24 * time.Hour,
	}
}

// CreateParams describes a new refresh token.
type CreateParams struct {
	UserID     string
	SessionID  string
	RememberMe bool
	Client     fingerprint.Context
}

// Issued pairs the raw token, shown to the client once, with its record.
type Issued struct {
	Token  string
	Record *Record
}

// Store is a Redis-backed refresh token store.
type Store struct {
	redis redis.UniversalClient
	cfg   Config
	now   func() time.Time
}

func NewStore(client redis.UniversalClient, cfg Config, now func() time.Time) (*Store, error) {
	if client == nil {
		return nil, errors.New("refresh store requires a redis client")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rt"
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("refresh TTL must be > 0")
	}
	if cfg.RememberMeTTL <= 0 {
		return nil, errors.New("refresh RememberMeTTL must be > 0")
	}
	if cfg.MaxPerUser < 0 {
		return nil, errors.New("refresh MaxPerUser must be >= 0")
	}
	if cfg.Retention < 0 {
		return nil, errors.New("refresh Retention must be >= 0")
	}
	if now == nil {
		now = time.Now
	}
	return &Store{redis: client, cfg: cfg, now: now}, nil
}

func (s *Store) recordKey(id string) string { return s.cfg.Prefix + ":rec:" + id }
func (s *Store) hashKey(hash string) string { return s.cfg.Prefix + ":hash:" + hash }
func (s *Store) userKey(userID string) string { return s.cfg.Prefix + ":user:" + userID }
func (s *Store) expiryKey() string { return s.cfg.Prefix + ":expiry" }

// Create issues a new token. If the user is at MaxPerUser, the oldest active
// tokens are retired first; their ids are returned.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Issued, []string, error) {
	if p.UserID == "" || p.SessionID == "" {
		return nil, nil, errors.New("refresh token requires user and session id")
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	ttl := s.cfg.TTL
	if p.RememberMe {
		ttl = s.cfg.RememberMeTTL
	}
	rec := &Record{
		ID:          uuid.NewString(),
		UserID:      p.UserID,
		SessionID:   p.SessionID,
		SecretHash:  secret.HashHex(),
		Fingerprint: p.Client.Of(),
		IPAddress:   p.Client.IP,
		UserAgent:   p.Client.UserAgent,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		LastUsedAt:  now,
		RememberMe:  p.RememberMe,
		Active:      true,
	}

	args := []interface{}{
		s.cfg.Prefix,
		rec.ID,
		s.cfg.MaxPerUser,
		now.UnixMilli(),
		s.cfg.Retention.Milliseconds(),
		rec.SecretHash,
		rec.CreatedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
	}
	args = append(args, rec.fields()...)

	keys := []string{s.userKey(rec.UserID), s.expiryKey(), s.recordKey(rec.ID), s.hashKey(rec.SecretHash)}
	res, err := createLua.Run(ctx, s.redis, keys, args...).StringSlice()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Issued{Token: secret.String(), Record: rec}, res, nil
}

// ValidateAndRotate swaps the presented secret for a new one on the same
// record. The boolean reports a fingerprint mismatch that was tolerated
// because EnforceFingerprint is off.
func (s *Store) ValidateAndRotate(ctx context.Context, presented string, client fingerprint.Context) (*Issued, bool, error) {
	old, err := internal.ParseSecret(presented)
	if err != nil {
		return nil, false, ErrNotFound
	}
	next, err := internal.NewSecret()
	if err != nil {
		return nil, false, err
	}

	presentedFP := client.Of()
	enforce := "0"
	if s.cfg.EnforceFingerprint {
		enforce = "1"
	}

	raw, err := rotateLua.Run(ctx, s.redis,
		[]string{s.hashKey(old.HashHex())},
		s.cfg.Prefix, next.HashHex(), s.now().UnixMilli(), presentedFP, enforce, s.cfg.Retention.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, false, fmt.Errorf("%w: empty rotate reply", ErrUnavailable)
	}

	status, _ := raw[0].(int64)
	switch status {
	case rotateStatusNotFound:
		return nil, false, ErrNotFound
	case rotateStatusExpired:
		return nil, false, ErrExpired
	case rotateStatusMismatch:
		return nil, true, ErrDeviceMismatch
	case rotateStatusRotated:
	default:
		return nil, false, fmt.Errorf("%w: unexpected rotate status %d", ErrUnavailable, status)
	}

	if len(raw) < 2 {
		return nil, false, fmt.Errorf("%w: rotate reply missing record", ErrUnavailable)
	}
	fields, _ := raw[1].([]interface{})
	rec, ok := recordFromReply(fields)
	if !ok {
		return nil, false, fmt.Errorf("%w: rotate reply missing record", ErrUnavailable)
	}
	return &Issued{Token: next.String(), Record: rec}, rec.Fingerprint != presentedFP, nil
}

// Revoke retires the record the presented token belongs to and returns its
// session id. Unknown tokens are not an error and yield "".
func (s *Store) Revoke(ctx context.Context, presented string) (string, error) {
	secret, err := internal.ParseSecret(presented)
	if err != nil {
		return "", nil
	}
	sessionID, err := revokeByHashLua.Run(ctx, s.redis, []string{s.hashKey(secret.HashHex())}, s.cfg.Prefix, s.now().UnixMilli()).Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return sessionID, nil
}

func (s *Store) RevokeByID(ctx context.Context, id string) error {
	err := revokeByIDLua.Run(ctx, s.redis, []string{s.recordKey(id)}, s.cfg.Prefix, id, s.now().UnixMilli()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAllForUser retires every active token of userID and returns how
// many were active.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := revokeUserLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.cfg.Prefix, s.now().UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	h, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rec, ok := recordFromHash(h)
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// ListActive returns the user's active, unexpired tokens oldest first.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*Record, error) {
	ids, err := s.redis.ZRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := s.now()
	out := make([]*Record, 0, len(ids))
	for _, cmd := range cmds {
		rec, ok := recordFromHash(cmd.Val())
		if !ok || !rec.Active || rec.Expired(now) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// SweepExpired retires up to limit records whose expiry has passed.
func (s *Store) SweepExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	n, err := sweepExpiredLua.Run(ctx, s.redis, []string{s.expiryKey()}, s.cfg.Prefix, s.now().UnixMilli(), limit).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}
