package authcore

import "time"

// SecurityReport summarizes the effective security posture of an engine.
// It carries no key material.
type SecurityReport struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	SlidingRenewal     bool
	SlidingWindow      time.Duration
	MaxSessionDuration time.Duration

	PasswordAlgorithm string
	Argon2            PasswordConfigReport
	UpgradeOnLogin    bool

	LockoutThreshold   int
	LockoutBase        time.Duration
	LockoutProgressive bool

	FingerprintPolicy  FingerprintPolicy
	SessionsRegistered bool
	SessionPolicy      string
	MaxSessionsPerUser int
	RevocationBackend  RevocationBackend
	AuditEnabled       bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	report := SecurityReport{
		SigningAlgorithm:   cfg.JWT.SigningMethod,
		AccessTTL:          cfg.JWT.AccessTTL,
		RefreshTTL:         cfg.Refresh.TTL,
		SlidingRenewal:     cfg.JWT.SlidingEnabled,
		PasswordAlgorithm:  string(e.hasher.Algorithm()),
		UpgradeOnLogin:     cfg.Password.UpgradeOnLogin,
		LockoutThreshold:   cfg.Lockout.MaxFailedAttempts,
		LockoutBase:        cfg.Lockout.BaseDuration,
		LockoutProgressive: cfg.Lockout.Progressive,
		FingerprintPolicy:  cfg.Refresh.FingerprintPolicy,
		SessionsRegistered: !cfg.Session.Disabled,
		RevocationBackend:  cfg.Revocation.Backend,
		AuditEnabled:       cfg.Audit.Enabled,
		Argon2: PasswordConfigReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
	}
	if cfg.JWT.SlidingEnabled {
		report.SlidingWindow = cfg.JWT.SlidingWindow
		report.MaxSessionDuration = cfg.JWT.MaxSessionDuration
	}
	if !cfg.Session.Disabled {
		report.SessionPolicy = string(cfg.Session.Policy)
		report.MaxSessionsPerUser = cfg.Session.MaxPerUser
	}
	return report
}
