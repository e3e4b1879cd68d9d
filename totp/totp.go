// Package totp provisions and validates RFC 6238 time-based one-time
// passwords on top of github.com/pquerna/otp.
package totp

import (
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
)

const secretSize = 20

var ErrEmptySecret = errors.New("totp secret is empty")

// Config holds TOTP parameters shared by enrollment and validation.
type Config struct {
	Issuer    string
	Period    uint
	Digits    int
	Skew      uint
	Algorithm string
}

func DefaultConfig() Config {
	return Config{
		Issuer:    "authcore",
		Period:    30,
		Digits:    6,
		Skew:      1,
		Algorithm: "SHA1",
	}
}

// Enrollment is a freshly generated secret and its otpauth:// provisioning
// URI.
type Enrollment struct {
	Secret string
	URI    string
}

type Manager struct {
	cfg       Config
	digits    otp.Digits
	algorithm otp.Algorithm
}

func New(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("totp issuer must be set")
	}
	if cfg.Period == 0 {
		return nil, errors.New("totp period must be > 0")
	}
	if cfg.Skew > 10 {
		return nil, errors.New("totp skew must be <= 10")
	}

	var digits otp.Digits
	switch cfg.Digits {
	case 6:
		digits = otp.DigitsSix
	case 8:
		digits = otp.DigitsEight
	default:
		return nil, errors.New("totp digits must be 6 or 8")
	}

	var algo otp.Algorithm
	switch strings.ToUpper(cfg.Algorithm) {
	case "", "SHA1":
		algo = otp.AlgorithmSHA1
	case "SHA256":
		algo = otp.AlgorithmSHA256
	case "SHA512":
		algo = otp.AlgorithmSHA512
	default:
		return nil, errors.New("totp algorithm must be SHA1, SHA256 or SHA512")
	}

	return &Manager{cfg: cfg, digits: digits, algorithm: algo}, nil
}

// Generate creates a new base32 secret for account.
func (m *Manager) Generate(account string) (Enrollment, error) {
	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: account,
		Period:      m.cfg.Period,
		SecretSize:  secretSize,
		Digits:      m.digits,
		Algorithm:   m.algorithm,
	})
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Secret: key.Secret(), URI: key.URL()}, nil
}

// Validate checks code against secret at the given instant, accepting Skew
// periods either side. Malformed codes are a mismatch, not an error.
func (m *Manager) Validate(secret, code string, at time.Time) (bool, error) {
	if secret == "" {
		return false, ErrEmptySecret
	}
	code = strings.TrimSpace(code)
	if len(code) != m.cfg.Digits {
		return false, nil
	}

	ok, err := pqtotp.ValidateCustom(code, secret, at.UTC(), m.opts())
	if err != nil {
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Code returns the passcode for secret at the given instant.
func (m *Manager) Code(secret string, at time.Time) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	return pqtotp.GenerateCodeCustom(secret, at.UTC(), m.opts())
}

func (m *Manager) opts() pqtotp.ValidateOpts {
	return pqtotp.ValidateOpts{
		Period:    m.cfg.Period,
		Skew:      m.cfg.Skew,
		Digits:    m.digits,
		Algorithm: m.algorithm,
	}
}
