package authcore

import (
	"errors"
	"time"

	"github.com/aqryuz/authcore/credential"
	"github.com/aqryuz/authcore/internal"
	"github.com/aqryuz/authcore/jwt"
	"github.com/aqryuz/authcore/lockout"
	"github.com/aqryuz/authcore/password"
	"github.com/aqryuz/authcore/refresh"
	"github.com/aqryuz/authcore/revocation"
	"github.com/aqryuz/authcore/session"
	"github.com/aqryuz/authcore/totp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	creds      credential.Store
	revocation revocation.Registry
	logger     *zap.Logger
	now        func() time.Time
	auditSink  AuditSink

	built bool
}

// New starts a Builder from [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing refresh tokens, sessions and, when
// configured, the revocation registry.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCredentialStore(store credential.Store) *Builder {
	b.creds = store
	return b
}

// WithRevocationRegistry overrides the registry chosen by
// Config.Revocation.Backend.
func (b *Builder) WithRevocationRegistry(r revocation.Registry) *Builder {
	b.revocation = r
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for every component. Tests only.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and constructs every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.creds == nil {
		return nil, errors.New("credential store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config: cloneConfig(cfg),
		logger: logger,
		now:    now,
		redis:  b.redis,
		creds:  b.creds,
	}

	// -------- PASSWORD + LOCKOUT + TOTP --------
	hasher, err := NewPasswordHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	dummy, err := internal.NewSecret()
	if err != nil {
		return nil, err
	}
	if engine.dummyHash, err = hasher.Hash(dummy.String()); err != nil {
		return nil, err
	}

	engine.lockout, err = lockout.New(lockout.Config{
		MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
		BaseDuration:      cfg.Lockout.BaseDuration,
		Progressive:       cfg.Lockout.Progressive,
		MaxDuration:       cfg.Lockout.MaxDuration,
		CycleResetAfter:   cfg.Lockout.CycleResetAfter,
	})
	if err != nil {
		return nil, err
	}

	tc := totp.DefaultConfig()
	tc.Issuer = cfg.TOTP.Issuer
	tc.Period = cfg.TOTP.Period
	tc.Digits = cfg.TOTP.Digits
	tc.Skew = cfg.TOTP.Skew
	if engine.totp, err = totp.New(tc); err != nil {
		return nil, err
	}

	// -------- REVOCATION --------
	switch {
	case b.revocation != nil:
		engine.revocation = b.revocation
	case cfg.Revocation.Backend == RevocationRedis:
		engine.revocation = revocation.NewRedis(b.redis, cfg.Revocation.RedisPrefix, now)
	default:
		engine.revocation = revocation.NewMemory(
			revocation.WithMaxEntries(cfg.Revocation.MaxEntries),
			revocation.WithLogger(logger.Named("revocation")),
			revocation.WithClock(now),
		)
	}

	// -------- TOKENS --------
	engine.codec, err = jwt.NewCodec(jwt.Config{
		AccessTTL:          cfg.JWT.AccessTTL,
		RefreshTTL:         cfg.JWT.RefreshTTL,
		SigningMethod:      jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:         cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:          cloneBytes(cfg.JWT.PublicKey),
		Issuer:             cfg.JWT.Issuer,
		Audience:           cfg.JWT.Audience,
		Leeway:             cfg.JWT.Leeway,
		RequireIAT:         true,
		KeyID:              cfg.JWT.KeyID,
		VerifyKeys:         cfg.JWT.VerifyKeys,
		SlidingEnabled:     cfg.JWT.SlidingEnabled,
		SlidingWindow:      cfg.JWT.SlidingWindow,
		MaxSessionDuration: cfg.JWT.MaxSessionDuration,
	}, jwt.WithClock(now), jwt.WithRevocationChecker(engine.revocation))
	if err != nil {
		return nil, err
	}

	// -------- REDIS STORES --------
	engine.refresh, err = refresh.NewStore(b.redis, refresh.Config{
		Prefix:             cfg.Refresh.RedisPrefix,
		TTL:                cfg.Refresh.TTL,
		RememberMeTTL:      cfg.Refresh.RememberMeTTL,
		MaxPerUser:         cfg.Refresh.MaxPerUser,
		Retention:          cfg.Refresh.Retention,
		EnforceFingerprint: cfg.Refresh.FingerprintPolicy == FingerprintReject,
	}, now)
	if err != nil {
		return nil, err
	}

	if !cfg.Session.Disabled {
		engine.sessions, err = session.NewRegistry(b.redis, session.Config{
			Prefix:        cfg.Session.RedisPrefix,
			TTL:           cfg.Session.TTL,
			RememberMeTTL: cfg.Session.RememberMeTTL,
			MaxPerUser:    cfg.Session.MaxPerUser,
			Policy:        cfg.Session.Policy,
			Retention:     cfg.Session.Retention,
		}, now)
		if err != nil {
			return nil, err
		}
	}

	// -------- AUDIT + METRICS --------
	sink := b.auditSink
	if sink == nil && b.logger != nil {
		sink = NewZapSink(logger)
	}
	engine.audit = startAuditQueue(cfg.Audit, sink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.initFlowService()

	b.built = true

	return engine, nil
}

// NewPasswordHasher builds the hasher an engine with cfg would use, for
// tooling that seeds credential stores without a running engine.
func NewPasswordHasher(cfg PasswordConfig) (*password.Hasher, error) {
	return password.NewHasher(password.HasherConfig{
		Algorithm: cfg.Algorithm,
		Argon2: password.Config{
			Memory:           cfg.Memory,
			Time:             cfg.Time,
			Parallelism:      cfg.Parallelism,
			SaltLength:       cfg.SaltLength,
			KeyLength:        cfg.KeyLength,
			MaxPasswordBytes: cfg.MaxPasswordBytes,
		},
		BcryptCost: cfg.BcryptCost,
	})
}
