package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aqryuz/authcore/credential"
	"github.com/aqryuz/authcore/internal/flows"
	"github.com/aqryuz/authcore/jwt"
	"github.com/aqryuz/authcore/lockout"
	"github.com/aqryuz/authcore/password"
	"github.com/aqryuz/authcore/refresh"
	"github.com/aqryuz/authcore/revocation"
	"github.com/aqryuz/authcore/session"
	"github.com/aqryuz/authcore/totp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Engine issues and validates credentials. Build it with [New] and treat it
// as immutable; every method is safe for concurrent use.
type Engine struct {
	config Config
	logger *zap.Logger
	now    func() time.Time
	redis  redis.UniversalClient

	creds      credential.Store
	hasher     *password.Hasher
	dummyHash  string
	lockout    *lockout.Policy
	totp       *totp.Manager
	codec      *jwt.Codec
	refresh    *refresh.Store
	sessions   *session.Registry
	revocation revocation.Registry

	audit   *auditQueue
	metrics *Metrics
	flows   flows.Service
}

// LoginRequest is the input of [Engine.Login]. The client device is taken
// from ctx, see [WithClient].
type LoginRequest struct {
	Identifier string
	Password   string
	TOTPCode   string
	RememberMe bool
}

// Close stops the audit queue after delivering buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, n)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// Login runs the credential protocol. A nil error with TOTPRequired set
// means the password was right and a TOTP code must follow; no tokens are
// issued in that case.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res, err := e.flows.Login(ctx, flows.LoginRequest{
		Identifier: req.Identifier,
		Password:   req.Password,
		TOTPCode:   req.TOTPCode,
		RememberMe: req.RememberMe,
		Client:     clientFromContext(ctx),
	})
	if err != nil {
		return nil, err
	}

	out := &LoginResult{
		UserID:       res.User.ID,
		Username:     res.User.Username,
		Roles:        append([]string(nil), res.User.Roles...),
		TOTPRequired: res.TOTPRequired,
		Warnings:     res.Warnings,
	}
	if res.TOTPRequired {
		return out, nil
	}

	out.AccessToken = res.AccessToken
	out.RefreshToken = res.RefreshToken
	if res.AccessClaims != nil {
		out.SessionID = res.AccessClaims.SessionID
		if res.AccessClaims.ExpiresAt != nil {
			out.AccessExpiresAt = res.AccessClaims.ExpiresAt.Time
		}
	}
	if res.Refresh != nil {
		out.RefreshExpiresAt = res.Refresh.ExpiresAt
	}
	return out, nil
}

// LoginTokens is the tuple form of Login. It returns ErrTOTPRequired when a
// code is needed but was not supplied.
func (e *Engine) LoginTokens(ctx context.Context, identifier, password, totpCode string) (string, string, error) {
	res, err := e.Login(ctx, LoginRequest{Identifier: identifier, Password: password, TOTPCode: totpCode})
	if err != nil {
		return "", "", err
	}
	if res.TOTPRequired {
		return "", "", ErrTOTPRequired
	}
	return res.AccessToken, res.RefreshToken, nil
}

// Refresh rotates refreshToken and issues a new access token for the same
// session. The presented token is consumed even when the refresh is
// rejected after rotation.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	client := clientFromContext(ctx)
	res := e.flows.Refresh(ctx, refreshToken, client)
	if res.Failure != flows.RefreshFailureNone {
		err := mapRefreshFailure(res)
		e.metricInc(MetricRefreshFailure)
		if res.Failure == flows.RefreshFailureDeviceMismatch {
			e.metricInc(MetricDeviceMismatch)
			e.emitAudit(ctx, auditEventDeviceMismatch, false, res.UserID, res.SessionID, err, func() map[string]string {
				return map[string]string{"policy": string(FingerprintReject)}
			})
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.SessionID, err, nil)
		return nil, err
	}

	if res.DeviceMismatch {
		e.metricInc(MetricDeviceMismatch)
		e.emitAudit(ctx, auditEventDeviceMismatch, true, res.UserID, res.SessionID, nil, func() map[string]string {
			return map[string]string{"policy": string(FingerprintLog)}
		})
		e.logger.Warn("refresh token presented from a different device",
			zap.String("user_id", res.UserID),
			zap.String("session_id", res.SessionID),
			zap.String("ip", client.IP),
		)
	}
	if res.SessionMissing {
		e.logger.Debug("refresh for unregistered session",
			zap.String("user_id", res.UserID),
			zap.String("session_id", res.SessionID),
		)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.SessionID, nil, nil)

	out := &RefreshResult{
		UserID:         res.UserID,
		SessionID:      res.SessionID,
		AccessToken:    res.AccessToken,
		RefreshToken:   res.RefreshToken,
		DeviceMismatch: res.DeviceMismatch,
	}
	if res.AccessClaims != nil && res.AccessClaims.ExpiresAt != nil {
		out.AccessExpiresAt = res.AccessClaims.ExpiresAt.Time
	}
	if res.Record != nil {
		out.RefreshExpiresAt = res.Record.ExpiresAt
	}
	return out, nil
}

func mapRefreshFailure(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureNotFound:
		return ErrRefreshTokenNotFound
	case flows.RefreshFailureExpired:
		return ErrTokenExpired
	case flows.RefreshFailureDeviceMismatch:
		return ErrDeviceMismatch
	case flows.RefreshFailureUserNotFound:
		return ErrUserNotFound
	case flows.RefreshFailureAccountDisabled:
		return ErrAccountDisabled
	case flows.RefreshFailureAccountLocked:
		return ErrAccountLocked
	case flows.RefreshFailureSessionEnded:
		if errors.Is(res.Err, session.ErrExpired) {
			return ErrSessionExpired
		}
		return ErrSessionNotFound
	case flows.RefreshFailureIssueAccess:
		return res.Err
	default:
		return storageErr(res.Err)
	}
}

// Authenticate verifies accessToken, applies sliding renewal and records
// activity on the session. When AuthResult.Renewed is set the client must
// switch to AuthResult.Token.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	res := e.flows.Authenticate(ctx, accessToken)
	if res.Failure != flows.AuthenticateFailureNone {
		e.metricInc(MetricAuthenticateFailure)
		err := mapAuthenticateFailure(res)
		if res.Failure == flows.AuthenticateFailureSessionExpired {
			e.metricInc(MetricSessionExpired)
			var userID, sid string
			if res.Claims != nil {
				userID, sid = res.Claims.Subject, res.Claims.SessionID
			}
			e.emitAudit(ctx, auditEventSessionExpired, true, userID, sid, err, nil)
		}
		return nil, err
	}

	if res.Renewed {
		e.metricInc(MetricTokenRenewed)
	}
	return &AuthResult{
		UserID:    res.Claims.Subject,
		SessionID: res.Claims.SessionID,
		Roles:     res.Claims.Roles,
		Claims:    res.Claims,
		Token:     res.Token,
		Renewed:   res.Renewed,
	}, nil
}

func mapAuthenticateFailure(res flows.AuthenticateResult) error {
	switch res.Failure {
	case flows.AuthenticateFailureExpired:
		return ErrTokenExpired
	case flows.AuthenticateFailureBlacklisted:
		return ErrTokenBlacklisted
	case flows.AuthenticateFailureSessionExpired:
		return ErrSessionExpired
	case flows.AuthenticateFailureSessionNotFound:
		return ErrSessionNotFound
	case flows.AuthenticateFailureStorage:
		return storageErr(res.Err)
	default:
		return ErrTokenMalformed
	}
}

// Logout ends the session named by either token. Both tokens are optional
// and every step tolerates state that is already gone, so repeating a
// logout succeeds.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, accessToken, refreshToken)
	if res.AccessBlacklisted {
		e.metricInc(MetricTokenBlacklisted)
	}
	if res.SessionRevoked {
		e.metricInc(MetricSessionRevoked)
	}
	if res.Err != nil {
		e.logger.Warn("logout incomplete",
			zap.String("user_id", res.UserID),
			zap.String("session_id", res.SessionID),
			zap.Error(res.Err),
		)
		e.emitAudit(ctx, auditEventLogoutSession, false, res.UserID, res.SessionID, res.Err, nil)
		return storageErr(res.Err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, res.UserID, res.SessionID, nil, nil)
	return nil
}

// LogoutAll revokes every refresh token and session of userID. Access tokens
// already handed out stay valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, userID, actor string) (LogoutAllResult, error) {
	if !e.ready() {
		return LogoutAllResult{}, ErrEngineNotReady
	}
	if userID == "" {
		return LogoutAllResult{}, ErrUserNotFound
	}

	res := e.flows.LogoutAll(ctx, userID, actor)
	out := LogoutAllResult{
		RefreshTokensRevoked: res.RefreshRevoked,
		SessionsRevoked:      res.SessionsRevoked,
	}
	e.metricAdd(MetricSessionRevoked, uint64(res.SessionsRevoked))
	if res.Err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", res.Err, nil)
		return out, storageErr(res.Err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"actor":    actor,
			"refresh":  fmt.Sprint(res.RefreshRevoked),
			"sessions": fmt.Sprint(res.SessionsRevoked),
		}
	})
	return out, nil
}

// HashPassword hashes plain with the configured algorithm. Useful for
// seeding a credential store.
func (e *Engine) HashPassword(plain string) (string, error) {
	if e == nil || e.hasher == nil {
		return "", ErrEngineNotReady
	}
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		return "", passwordErr(err)
	}
	return hash, nil
}
