package jwt

import (
	"crypto/ed25519"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

func (c *Codec) method() jwt.SigningMethod {
	if c.cfg.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (c *Codec) signKey() (interface{}, error) {
	if c.cfg.SigningMethod == MethodEd25519 {
		return parseEdPrivateKey(c.cfg.PrivateKey)
	}
	return c.cfg.PrivateKey, nil
}

func (c *Codec) verifyKey(raw []byte) (interface{}, error) {
	if c.cfg.SigningMethod == MethodEd25519 {
		return parseEdPublicKey(raw)
	}
	return raw, nil
}

// keyFunc resolves the verification key, honouring kid when a key set or a
// fixed KeyID is configured.
func (c *Codec) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != c.method().Alg() {
		return nil, errors.New("unexpected signing algorithm")
	}

	kid, _ := t.Header["kid"].(string)
	if len(c.cfg.VerifyKeys) > 0 {
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := c.cfg.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return c.verifyKey(key)
	}
	if c.cfg.KeyID != "" && kid != c.cfg.KeyID {
		return nil, errors.New("unknown kid")
	}

	if c.cfg.SigningMethod == MethodEd25519 {
		return parseEdPublicKey(c.cfg.PublicKey)
	}
	return c.cfg.PrivateKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
