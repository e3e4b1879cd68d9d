package authcore

import (
	"context"

	"go.uber.org/zap"
)

// ChangePassword replaces userID's password after checking the current one.
// Hashing errors are reported as ErrPasswordPolicy. Existing sessions are
// left alone; call RevokeOtherSessions to end them.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.ChangePassword(ctx, userID, oldPassword, newPassword)
}

// UnlockAccount clears the lockout and failure history of the user named by
// identifier. actor is recorded in the audit trail.
func (e *Engine) UnlockAccount(ctx context.Context, identifier, actor string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	userID, err := e.flows.UnlockAccount(ctx, identifier, actor)
	if err != nil {
		return err
	}
	e.logger.Info("account unlocked", zap.String("user_id", userID), zap.String("actor", actor))
	return nil
}

// BeginTOTPEnrollment generates a secret for userID and stores it disabled.
// The secret becomes active after ConfirmTOTPEnrollment.
func (e *Engine) BeginTOTPEnrollment(ctx context.Context, userID string) (*TOTPEnrollment, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	enr, err := e.flows.BeginTOTPEnrollment(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &TOTPEnrollment{Secret: enr.Secret, URI: enr.URI}, nil
}

func (e *Engine) ConfirmTOTPEnrollment(ctx context.Context, userID, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.ConfirmTOTPEnrollment(ctx, userID, code)
}

// DisableTOTP turns TOTP off. code must be valid while TOTP is enabled; a
// pending enrollment can be discarded without one.
func (e *Engine) DisableTOTP(ctx context.Context, userID, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.DisableTOTP(ctx, userID, code)
}
