package password

import (
	"errors"
	"strings"
)

// Algorithm selects the scheme used for new hashes.
type Algorithm string

const (
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
)

// Hasher hashes with one configured algorithm and verifies any supported
// encoding. A hash in a different scheme than the configured one always
// needs an upgrade.
type Hasher struct {
	algorithm Algorithm
	argon     *Argon2
	bcrypt    *Bcrypt
}

// HasherConfig configures NewHasher. A zero BcryptCost uses bcrypt's default.
type HasherConfig struct {
	Algorithm  Algorithm
	Argon2     Config
	BcryptCost int
}

func NewHasher(cfg HasherConfig) (*Hasher, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmArgon2id
	}
	if cfg.Algorithm != AlgorithmArgon2id && cfg.Algorithm != AlgorithmBcrypt {
		return nil, errors.New("password algorithm must be argon2id or bcrypt")
	}

	argon, err := NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}
	bc, err := NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &Hasher{algorithm: cfg.Algorithm, argon: argon, bcrypt: bc}, nil
}

func (h *Hasher) Algorithm() Algorithm { return h.algorithm }

func (h *Hasher) Hash(password string) (string, error) {
	if h.algorithm == AlgorithmBcrypt {
		return h.bcrypt.Hash(password)
	}
	return h.argon.Hash(password)
}

func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$"+algorithmID+"$"):
		return h.argon.Verify(password, encodedHash)
	case isBcrypt(encodedHash):
		return h.bcrypt.Verify(password, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}

func (h *Hasher) NeedsUpgrade(encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$"+algorithmID+"$"):
		if h.algorithm != AlgorithmArgon2id {
			return true, nil
		}
		return h.argon.NeedsUpgrade(encodedHash)
	case isBcrypt(encodedHash):
		if h.algorithm != AlgorithmBcrypt {
			return true, nil
		}
		return h.bcrypt.NeedsUpgrade(encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}
