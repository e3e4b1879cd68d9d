package authcore

import (
	"errors"
	"fmt"

	"github.com/aqryuz/authcore/jwt"
	"github.com/aqryuz/authcore/password"
)

var (
	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountDisabled    = errors.New("account disabled")
	// ErrTOTPRequired is only returned by LoginTokens; Login reports the
	// same state through LoginResult.TOTPRequired.
	ErrTOTPRequired       = errors.New("totp code required")
	ErrInvalidTOTP        = errors.New("invalid totp code")
	ErrTOTPNotConfigured  = errors.New("totp not configured")
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	ErrPasswordReuse      = errors.New("new password must differ from the current one")
	ErrPasswordPolicy     = errors.New("password policy violation")
	ErrUserNotFound       = errors.New("user not found")
)

var (
	ErrTokenExpired     = jwt.ErrTokenExpired
	ErrTokenBlacklisted = jwt.ErrTokenBlacklisted
	ErrTokenMalformed   = jwt.ErrTokenMalformed
	// ErrSessionExpired means the session hit its absolute ceiling or its
	// registry entry expired. It matches ErrTokenExpired.
	ErrSessionExpired = fmt.Errorf("session expired: %w", ErrTokenExpired)

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrSessionLimitExceeded is used internally by session admission and is
	// never surfaced by Login.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	ErrSessionNotFound      = errors.New("session not found")
	ErrDeviceMismatch       = errors.New("device mismatch")
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrEngineNotReady     = errors.New("engine not initialized")
	ErrEngineClosed       = errors.New("engine closed")
)

// storageErr wraps a backend failure without losing its message.
func storageErr(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// passwordErr maps hashing input errors onto ErrPasswordPolicy.
func passwordErr(err error) error {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	default:
		return err
	}
}
