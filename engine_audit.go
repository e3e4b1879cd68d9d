package authcore

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess              = "login_success"
	auditEventLoginFailure              = "login_failure"
	auditEventAccountLocked             = "account_locked"
	auditEventAccountUnlocked           = "account_unlocked"
	auditEventRefreshSuccess            = "refresh_success"
	auditEventRefreshInvalid            = "refresh_invalid"
	auditEventDeviceMismatch            = "device_mismatch"
	auditEventSessionRegistrationFailed = "session_registration_failed"
	auditEventSessionExpired            = "session_expired"
	auditEventSessionRevoked            = "session_revoked"
	auditEventLogoutSession             = "logout_session"
	auditEventLogoutAll                 = "logout_all"
	auditEventPasswordChangeSuccess     = "password_change_success"
	auditEventPasswordChangeFailure     = "password_change_failure"
	auditEventTOTPRequired              = "totp_required"
	auditEventTOTPSetupRequested        = "totp_setup_requested"
	auditEventTOTPEnabled               = "totp_enabled"
	auditEventTOTPDisabled              = "totp_disabled"
	auditEventTOTPFailure               = "totp_failure"
)

// AuditErrorCode is the stable, non-sensitive error label carried by audit
// events in place of raw error strings.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrTOTPRequired       AuditErrorCode = "totp_required"
	auditErrTOTPInvalid        AuditErrorCode = "totp_invalid"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrRefreshNotFound    AuditErrorCode = "refresh_not_found"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrDeviceMismatch     AuditErrorCode = "device_mismatch"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Publish(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrTOTPRequired):
		return auditErrTOTPRequired
	case errors.Is(err, ErrInvalidTOTP),
		errors.Is(err, ErrTOTPNotConfigured),
		errors.Is(err, ErrTOTPAlreadyEnabled):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenBlacklisted),
		errors.Is(err, ErrTokenMalformed):
		return auditErrInvalidToken
	case errors.Is(err, ErrRefreshTokenNotFound):
		return auditErrRefreshNotFound
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrDeviceMismatch):
		return auditErrDeviceMismatch
	case errors.Is(err, ErrStorageUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
