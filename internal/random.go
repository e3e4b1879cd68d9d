package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// SecretSize is the entropy of an opaque refresh secret in bytes.
const SecretSize = 32

// Secret is a raw opaque refresh-token secret.
type Secret [SecretSize]byte

// ErrSecretSize is returned when a presented opaque token does not decode to
// exactly SecretSize bytes.
var ErrSecretSize = errors.New("invalid opaque secret size")

func NewSecret() (Secret, error) {
	var s Secret
	_, err := rand.Read(s[:])
	return s, err
}

// String encodes the secret as unpadded base64url, the wire form handed to clients.
func (s Secret) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// Hash returns the SHA-256 digest of the secret. Only this digest is persisted.
func (s Secret) Hash() [32]byte {
	return sha256.Sum256(s[:])
}

// HashHex is the lowercase hex form of Hash, used in storage keys.
func (s Secret) HashHex() string {
	h := s.Hash()
	return hex.EncodeToString(h[:])
}

func ParseSecret(token string) (Secret, error) {
	var s Secret

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return s, err
	}
	if len(raw) != SecretSize {
		return s, ErrSecretSize
	}

	copy(s[:], raw)
	return s, nil
}

// HashToken returns the hex SHA-256 of an arbitrary token string. Used for
// denylist keys so raw bearer tokens never reach storage.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
