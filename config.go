package authcore

import (
	"errors"
	"time"

	"github.com/aqryuz/authcore/password"
	"github.com/aqryuz/authcore/session"
)

// Config holds every engine setting. Build validates it once; the engine
// keeps a private copy.
type Config struct {
	JWT        JWTConfig
	Refresh    RefreshConfig
	Session    SessionConfig
	Revocation RevocationConfig
	Lockout    LockoutConfig
	Password   PasswordConfig
	TOTP       TOTPConfig
	Sweep      SweepConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Sliding renewal re-issues access tokens while the client stays
	// active, never past MaxSessionDuration from first issuance.
	SlidingEnabled     bool
	SlidingWindow      time.Duration
	MaxSessionDuration time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// FingerprintPolicy decides what a refresh from a different device does.
type FingerprintPolicy string

const (
	// FingerprintLog rotates the token and records the mismatch.
	FingerprintLog FingerprintPolicy = "log"
	// FingerprintReject retires the token and fails the refresh.
	FingerprintReject FingerprintPolicy = "reject"
)

type RefreshConfig struct {
	RedisPrefix       string
	TTL               time.Duration
	RememberMeTTL     time.Duration
	MaxPerUser        int
	Retention         time.Duration
	FingerprintPolicy FingerprintPolicy
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	// Disabled skips session registration entirely. Tokens still work.
	Disabled      bool
	RedisPrefix   string
	TTL           time.Duration
	RememberMeTTL time.Duration
	MaxPerUser    int
	Policy        session.Policy
	Retention     time.Duration
}

/*
====================================
REVOCATION CONFIG
====================================
*/

type RevocationBackend string

const (
	RevocationMemory RevocationBackend = "memory"
	RevocationRedis  RevocationBackend = "redis"
)

type RevocationConfig struct {
	Backend     RevocationBackend
	RedisPrefix string
	// MaxEntries triggers an eager sweep for the memory backend. Entries
	// are never dropped before their token expires.
	MaxEntries int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

type LockoutConfig struct {
	MaxFailedAttempts int
	BaseDuration      time.Duration
	Progressive       bool
	MaxDuration       time.Duration
	CycleResetAfter   time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Algorithm        password.Algorithm
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	BcryptCost       int
	UpgradeOnLogin   bool
}

/*
====================================
TOTP CONFIG
====================================
*/

type TOTPConfig struct {
	Issuer string
	Period uint
	Digits int
	Skew   uint
}

/*
====================================
SWEEP CONFIG
====================================
*/

type SweepConfig struct {
	RefreshInterval    time.Duration
	SessionInterval    time.Duration
	RevocationInterval time.Duration
	BatchSize          int
}

/*
====================================
AUDIT + METRICS
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. Signing keys are left empty
// and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:          15 * time.Minute,
			RefreshTTL:         24 * time.Hour,
			SigningMethod:      "hs256",
			Issuer:             "authcore",
			Leeway:             0,
			SlidingEnabled:     true,
			SlidingWindow:      10 * time.Minute,
			MaxSessionDuration: 120 * time.Minute,
		},
		Refresh: RefreshConfig{
			RedisPrefix:       "rt",
			TTL:               24 * time.Hour,
			RememberMeTTL:     30 * 24 * time.Hour,
			MaxPerUser:        5,
			Retention:         7 * 24 * time.Hour,
			FingerprintPolicy: FingerprintLog,
		},
		Session: SessionConfig{
			RedisPrefix:   "us",
			TTL:           24 * time.Hour,
			RememberMeTTL: 30 * 24 * time.Hour,
			MaxPerUser:    5,
			Policy:        session.PolicyMultiDevice,
			Retention:     7 * 24 * time.Hour,
		},
		Revocation: RevocationConfig{
			Backend:     RevocationMemory,
			RedisPrefix: "rv",
			MaxEntries:  100_000,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			BaseDuration:      15 * time.Minute,
			Progressive:       true,
			MaxDuration:       24 * time.Hour,
			CycleResetAfter:   24 * time.Hour,
		},
		Password: PasswordConfig{
			Algorithm:        password.AlgorithmArgon2id,
			Memory:           64 * 1024,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
			UpgradeOnLogin:   true,
		},
		TOTP: TOTPConfig{
			Issuer: "authcore",
			Period: 30,
			Digits: 6,
			Skew:   1,
		},
		Sweep: SweepConfig{
			RefreshInterval:    time.Hour,
			SessionInterval:    5 * time.Minute,
			RevocationInterval: time.Hour,
			BatchSize:          500,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks ranges and cross-field consistency. Component
// constructors repeat their own checks at Build time.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.SigningMethod != "hs256" && c.JWT.SigningMethod != "ed25519" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}
	if c.JWT.SlidingEnabled {
		if c.JWT.SlidingWindow <= 0 {
			return errors.New("JWT SlidingWindow must be > 0 when sliding is enabled")
		}
		if c.JWT.MaxSessionDuration <= 0 {
			return errors.New("JWT MaxSessionDuration must be > 0 when sliding is enabled")
		}
		if c.JWT.MaxSessionDuration < c.JWT.AccessTTL {
			return errors.New("JWT MaxSessionDuration must be >= AccessTTL")
		}
	}

	// Refresh
	if c.Refresh.TTL <= 0 || c.Refresh.RememberMeTTL <= 0 {
		return errors.New("Refresh TTL and RememberMeTTL must be > 0")
	}
	if c.Refresh.MaxPerUser < 0 {
		return errors.New("Refresh MaxPerUser must be >= 0")
	}
	if c.Refresh.Retention < 0 {
		return errors.New("Refresh Retention must be >= 0")
	}
	switch c.Refresh.FingerprintPolicy {
	case FingerprintLog, FingerprintReject:
	default:
		return errors.New("Refresh FingerprintPolicy must be 'log' or 'reject'")
	}

	// Session
	if !c.Session.Disabled {
		if c.Session.TTL <= 0 || c.Session.RememberMeTTL <= 0 {
			return errors.New("Session TTL and RememberMeTTL must be > 0")
		}
		if c.Session.MaxPerUser < 0 {
			return errors.New("Session MaxPerUser must be >= 0")
		}
		if c.Session.Policy != session.PolicyMultiDevice && c.Session.Policy != session.PolicySingleDevice {
			return errors.New("Session Policy must be 'multi_device' or 'single_device'")
		}
	}

	// Revocation
	if c.Revocation.Backend != RevocationMemory && c.Revocation.Backend != RevocationRedis {
		return errors.New("Revocation Backend must be 'memory' or 'redis'")
	}
	if c.Revocation.MaxEntries < 0 {
		return errors.New("Revocation MaxEntries must be >= 0")
	}

	// Lockout
	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("Lockout MaxFailedAttempts must be > 0")
	}
	if c.Lockout.BaseDuration <= 0 {
		return errors.New("Lockout BaseDuration must be > 0")
	}
	if c.Lockout.MaxDuration != 0 && c.Lockout.MaxDuration < c.Lockout.BaseDuration {
		return errors.New("Lockout MaxDuration must be >= BaseDuration")
	}

	// Password
	switch c.Password.Algorithm {
	case password.AlgorithmArgon2id:
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	case password.AlgorithmBcrypt:
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period == 0 {
		return errors.New("TOTP Period must be > 0")
	}

	// Sweep
	if c.Sweep.RefreshInterval <= 0 || c.Sweep.SessionInterval <= 0 || c.Sweep.RevocationInterval <= 0 {
		return errors.New("Sweep intervals must be > 0")
	}
	if c.Sweep.BatchSize <= 0 {
		return errors.New("Sweep BatchSize must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	return nil
}
