// Package config loads authcore engine settings from environment variables
// and an optional config file using Viper.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aqryuz/authcore"
	"github.com/aqryuz/authcore/session"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. AUTHCORE_REDIS_ADDR.
const EnvPrefix = "AUTHCORE"

// Settings is the flat, operator-facing view of the engine configuration.
type Settings struct {
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// DatabaseURL is the Postgres DSN of the credential store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	SigningMethod string `mapstructure:"JWT_SIGNING_METHOD"`
	// JWTSecret is the raw hs256 key.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey and JWTPublicKey are base64 encoded ed25519 keys.
	JWTPrivateKey      string        `mapstructure:"JWT_PRIVATE_KEY"`
	JWTPublicKey       string        `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer          string        `mapstructure:"JWT_ISSUER"`
	JWTAudience        string        `mapstructure:"JWT_AUDIENCE"`
	AccessTTL          time.Duration `mapstructure:"ACCESS_TTL"`
	RefreshTTL         time.Duration `mapstructure:"REFRESH_TTL"`
	SlidingEnabled     bool          `mapstructure:"SLIDING_ENABLED"`
	SlidingWindow      time.Duration `mapstructure:"SLIDING_WINDOW"`
	MaxSessionDuration time.Duration `mapstructure:"MAX_SESSION_DURATION"`

	FingerprintPolicy  string `mapstructure:"FINGERPRINT_POLICY"`
	MaxTokensPerUser   int    `mapstructure:"MAX_TOKENS_PER_USER"`
	SessionsDisabled   bool   `mapstructure:"SESSIONS_DISABLED"`
	SessionPolicy      string `mapstructure:"SESSION_POLICY"`
	MaxSessionsPerUser int    `mapstructure:"MAX_SESSIONS_PER_USER"`
	RevocationBackend  string `mapstructure:"REVOCATION_BACKEND"`

	LockoutThreshold   int           `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutDuration    time.Duration `mapstructure:"LOCKOUT_DURATION"`
	LockoutProgressive bool          `mapstructure:"LOCKOUT_PROGRESSIVE"`

	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`

	SweepBatchSize int  `mapstructure:"SWEEP_BATCH_SIZE"`
	AuditEnabled   bool `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
	// LogDevelopment switches the CLI to zap's development logger.
	LogDevelopment bool `mapstructure:"LOG_DEVELOPMENT"`
}

// Load reads path (when non-empty), then overlays AUTHCORE_* environment
// variables. Defaults mirror authcore.DefaultConfig.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if s.RedisAddr == "" {
		return nil, errors.New("config: REDIS_ADDR must be set")
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	d := authcore.DefaultConfig()

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("JWT_SIGNING_METHOD", d.JWT.SigningMethod)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", d.JWT.Issuer)
	v.SetDefault("JWT_AUDIENCE", d.JWT.Audience)
	v.SetDefault("ACCESS_TTL", d.JWT.AccessTTL)
	v.SetDefault("REFRESH_TTL", d.Refresh.TTL)
	v.SetDefault("SLIDING_ENABLED", d.JWT.SlidingEnabled)
	v.SetDefault("SLIDING_WINDOW", d.JWT.SlidingWindow)
	v.SetDefault("MAX_SESSION_DURATION", d.JWT.MaxSessionDuration)

	v.SetDefault("FINGERPRINT_POLICY", string(d.Refresh.FingerprintPolicy))
	v.SetDefault("MAX_TOKENS_PER_USER", d.Refresh.MaxPerUser)
	v.SetDefault("SESSIONS_DISABLED", d.Session.Disabled)
	v.SetDefault("SESSION_POLICY", string(d.Session.Policy))
	v.SetDefault("MAX_SESSIONS_PER_USER", d.Session.MaxPerUser)
	v.SetDefault("REVOCATION_BACKEND", string(d.Revocation.Backend))

	v.SetDefault("LOCKOUT_THRESHOLD", d.Lockout.MaxFailedAttempts)
	v.SetDefault("LOCKOUT_DURATION", d.Lockout.BaseDuration)
	v.SetDefault("LOCKOUT_PROGRESSIVE", d.Lockout.Progressive)

	v.SetDefault("TOTP_ISSUER", d.TOTP.Issuer)

	v.SetDefault("SWEEP_BATCH_SIZE", d.Sweep.BatchSize)
	v.SetDefault("AUDIT_ENABLED", d.Audit.Enabled)
	v.SetDefault("METRICS_ENABLED", d.Metrics.Enabled)
	v.SetDefault("LOG_DEVELOPMENT", false)
}

// EngineConfig maps the settings onto authcore.DefaultConfig and validates
// the result.
func (s *Settings) EngineConfig() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()

	cfg.JWT.SigningMethod = strings.ToLower(s.SigningMethod)
	switch cfg.JWT.SigningMethod {
	case "ed25519":
		priv, err := decodeKey("JWT_PRIVATE_KEY", s.JWTPrivateKey)
		if err != nil {
			return authcore.Config{}, err
		}
		pub, err := decodeKey("JWT_PUBLIC_KEY", s.JWTPublicKey)
		if err != nil {
			return authcore.Config{}, err
		}
		cfg.JWT.PrivateKey = priv
		cfg.JWT.PublicKey = pub
	default:
		cfg.JWT.PrivateKey = []byte(s.JWTSecret)
	}
	cfg.JWT.Issuer = s.JWTIssuer
	cfg.JWT.Audience = s.JWTAudience
	cfg.JWT.AccessTTL = s.AccessTTL
	cfg.JWT.RefreshTTL = s.RefreshTTL
	cfg.JWT.SlidingEnabled = s.SlidingEnabled
	cfg.JWT.SlidingWindow = s.SlidingWindow
	cfg.JWT.MaxSessionDuration = s.MaxSessionDuration

	cfg.Refresh.TTL = s.RefreshTTL
	cfg.Refresh.MaxPerUser = s.MaxTokensPerUser
	cfg.Refresh.FingerprintPolicy = authcore.FingerprintPolicy(strings.ToLower(s.FingerprintPolicy))

	cfg.Session.Disabled = s.SessionsDisabled
	cfg.Session.Policy = session.Policy(strings.ToLower(s.SessionPolicy))
	cfg.Session.MaxPerUser = s.MaxSessionsPerUser

	cfg.Revocation.Backend = authcore.RevocationBackend(strings.ToLower(s.RevocationBackend))

	cfg.Lockout.MaxFailedAttempts = s.LockoutThreshold
	cfg.Lockout.BaseDuration = s.LockoutDuration
	cfg.Lockout.Progressive = s.LockoutProgressive

	cfg.TOTP.Issuer = s.TOTPIssuer
	cfg.Sweep.BatchSize = s.SweepBatchSize
	cfg.Audit.Enabled = s.AuditEnabled
	cfg.Metrics.Enabled = s.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func decodeKey(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("config: %s must be set for ed25519", name)
	}
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("config: %s is not valid base64: %w", name, err)
	}
	return b, nil
}
