package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrTokenMalformed   = errors.New("token malformed")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenBlacklisted = errors.New("token blacklisted")
	// ErrSessionCeiling wraps ErrTokenExpired: the session has outlived the
	// absolute duration measured from first issuance.
	ErrSessionCeiling = fmt.Errorf("session exceeded maximum duration: %w", ErrTokenExpired)
	// ErrRevocationCheck means the blacklist could not be consulted.
	ErrRevocationCheck = errors.New("revocation check failed")
	ErrSigningKey      = errors.New("signing key unusable")
)

// Config configures a Codec.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	SlidingEnabled     bool
	SlidingWindow      time.Duration
	MaxSessionDuration time.Duration
}

// Claims carried by every token. Subject is the user id.
type Claims struct {
	SessionID      string           `json:"sid"`
	FirstIssuedAt  *jwt.NumericDate `json:"fia"`
	LastActivityAt *jwt.NumericDate `json:"lat"`
	Roles          []string         `json:"roles,omitempty"`
	Type           string           `json:"typ"`
	jwt.RegisteredClaims
}

// RevocationChecker is consulted before any cryptographic work.
type RevocationChecker interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

type Option func(*Codec)

// WithClock overrides time.Now for issuance and validation.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func WithRevocationChecker(r RevocationChecker) Option {
	return func(c *Codec) { c.revoked = r }
}

// Codec issues and verifies access and refresh JWTs and applies
// sliding-window renewal.
type Codec struct {
	cfg     Config
	now     func() time.Time
	revoked RevocationChecker
}

func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt AccessTTL must be > 0")
	}
	if cfg.RefreshTTL < 0 {
		return nil, errors.New("jwt RefreshTTL must be >= 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt Leeway must be between 0 and 2m")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("jwt MaxFutureIAT must be between 0 and 24h")
	}
	if cfg.SlidingEnabled {
		if cfg.SlidingWindow <= 0 {
			return nil, errors.New("jwt SlidingWindow must be > 0 when sliding is enabled")
		}
		if cfg.MaxSessionDuration <= 0 {
			return nil, errors.New("jwt MaxSessionDuration must be > 0 when sliding is enabled")
		}
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}

	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 key must be at least 32 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	c := &Codec{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Codec) SlidingEnabled() bool { return c.cfg.SlidingEnabled }

// IssueAccess starts a new session: a fresh session id with firstIssuedAt and
// lastActivityAt set to now.
func (c *Codec) IssueAccess(subject string, roles []string) (string, *Claims, error) {
	return c.IssueAccessForSession(subject, uuid.NewString(), c.now(), roles)
}

// IssueAccessForSession issues an access token for an existing session id.
func (c *Codec) IssueAccessForSession(subject, sessionID string, firstIssuedAt time.Time, roles []string) (string, *Claims, error) {
	now := c.now()
	claims := c.newClaims(TypeAccess, subject, sessionID, firstIssuedAt, now, now.Add(c.cfg.AccessTTL))
	claims.Roles = roles
	token, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// IssueRefresh issues a signed refresh-typed token for the session.
func (c *Codec) IssueRefresh(subject, sessionID string, firstIssuedAt time.Time) (string, error) {
	ttl := c.cfg.RefreshTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	now := c.now()
	return c.sign(c.newClaims(TypeRefresh, subject, sessionID, firstIssuedAt, now, now.Add(ttl)))
}

// Verify checks, in order: blacklist, signature and registered claims,
// expiry, token type, then the absolute session ceiling.
func (c *Codec) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := c.parse(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrTokenMalformed)
	}
	if c.pastCeiling(claims, false) {
		return nil, ErrSessionCeiling
	}
	return claims, nil
}

// VerifyRefresh is Verify for refresh-typed tokens. The session ceiling does
// not apply.
func (c *Codec) VerifyRefresh(ctx context.Context, token string) (*Claims, error) {
	claims, err := c.parse(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, fmt.Errorf("%w: not a refresh token", ErrTokenMalformed)
	}
	return claims, nil
}

// RenewForActivity re-issues token when the last activity falls within the
// sliding window. Outside the window the input is returned unchanged.
// ErrSessionCeiling means the session must end and the caller has to
// re-authenticate. Renewal keeps the session id and firstIssuedAt.
func (c *Codec) RenewForActivity(ctx context.Context, token string) (string, error) {
	if !c.cfg.SlidingEnabled {
		return token, nil
	}

	claims, err := c.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	if c.pastCeiling(claims, true) {
		return "", ErrSessionCeiling
	}

	now := c.now()
	last := claims.IssuedAt
	if claims.LastActivityAt != nil {
		last = claims.LastActivityAt
	}
	if last == nil || now.Sub(last.Time) > c.cfg.SlidingWindow {
		return token, nil
	}

	renewed := c.newClaims(TypeAccess, claims.Subject, claims.SessionID, claims.FirstIssuedAt.Time, now, now.Add(c.cfg.AccessTTL))
	renewed.Roles = claims.Roles
	return c.sign(renewed)
}

func (c *Codec) parse(ctx context.Context, token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenMalformed
	}

	if c.revoked != nil {
		blacklisted, err := c.revoked.IsBlacklisted(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRevocationCheck, err)
		}
		if blacklisted {
			return nil, ErrTokenBlacklisted
		}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.cfg.Leeway))
	}
	if c.cfg.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if c.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.cfg.Issuer))
	}
	if c.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(c.cfg.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, c.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.FirstIssuedAt == nil {
		return nil, fmt.Errorf("%w: missing session claims", ErrTokenMalformed)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(c.now().Add(c.cfg.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenMalformed)
	}
	return claims, nil
}

// pastCeiling reports whether the session age has passed the absolute
// ceiling. Verification rejects only a strictly greater age; renewal also
// refuses at exactly the ceiling.
func (c *Codec) pastCeiling(claims *Claims, inclusive bool) bool {
	if !c.cfg.SlidingEnabled || c.cfg.MaxSessionDuration <= 0 {
		return false
	}
	age := c.now().Sub(claims.FirstIssuedAt.Time)
	if inclusive {
		return age >= c.cfg.MaxSessionDuration
	}
	return age > c.cfg.MaxSessionDuration
}

func (c *Codec) newClaims(typ, subject, sessionID string, firstIssuedAt, now, exp time.Time) *Claims {
	claims := &Claims{
		SessionID:      sessionID,
		FirstIssuedAt:  jwt.NewNumericDate(firstIssuedAt),
		LastActivityAt: jwt.NewNumericDate(now),
		Type:           typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	if c.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.cfg.Audience}
	}
	return claims
}

func (c *Codec) sign(claims *Claims) (string, error) {
	key, err := c.signKey()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningKey, err)
	}
	token := jwt.NewWithClaims(c.method(), claims)
	if c.cfg.KeyID != "" {
		token.Header["kid"] = c.cfg.KeyID
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningKey, err)
	}
	return signed, nil
}
