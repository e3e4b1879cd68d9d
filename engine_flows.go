package authcore

import (
	"context"

	"github.com/aqryuz/authcore/internal/flows"
	"github.com/aqryuz/authcore/refresh"
	"github.com/aqryuz/authcore/session"
)

// initFlowService binds the flow package to this engine's components. It
// runs once from Build.
func (e *Engine) initFlowService() {
	inc := func(id int) { e.metricInc(MetricID(id)) }
	add := func(id int, n uint64) { e.metricAdd(MetricID(id), n) }
	audit := func(ctx context.Context, event string, success bool, userID, sessionID string, err error, meta func() map[string]string) {
		e.emitAudit(ctx, event, success, userID, sessionID, err, meta)
	}

	login := flows.LoginDeps{
		PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		Now:                    e.now,
		Logger:                 e.logger.Named("login"),

		FindUser:           e.creds.FindByIdentifier,
		UpdateLockState:    e.creds.UpdateLockState,
		UpdateLastLogin:    e.creds.UpdateLastLogin,
		UpdatePasswordHash: e.creds.UpdatePasswordHash,

		VerifyPassword:       e.hasher.Verify,
		DummyVerify:          e.dummyVerify,
		PasswordNeedsUpgrade: e.hasher.NeedsUpgrade,
		HashPassword:         e.hasher.Hash,
		VerifyTOTP:           e.totp.Validate,

		IsLocked:  e.lockout.IsLocked,
		OnFailure: e.lockout.OnFailure,
		OnSuccess: e.lockout.OnSuccess,

		IssueAccess:   e.codec.IssueAccess,
		CreateRefresh: e.refresh.Create,

		MetricInc: inc,
		MetricAdd: add,
		EmitAudit: audit,

		Metrics: flows.LoginMetrics{
			LoginSuccess:              int(MetricLoginSuccess),
			LoginFailure:              int(MetricLoginFailure),
			AccountLocked:             int(MetricAccountLocked),
			TOTPRequired:              int(MetricTOTPRequired),
			TOTPFailure:               int(MetricTOTPFailure),
			SessionCreated:            int(MetricSessionCreated),
			SessionEvicted:            int(MetricSessionEvicted),
			SessionRegistrationFailed: int(MetricSessionRegistrationFailed),
			RefreshEvicted:            int(MetricRefreshEvicted),
		},
		Events: flows.LoginEvents{
			LoginSuccess:              auditEventLoginSuccess,
			LoginFailure:              auditEventLoginFailure,
			AccountLocked:             auditEventAccountLocked,
			TOTPRequired:              auditEventTOTPRequired,
			TOTPFailure:               auditEventTOTPFailure,
			SessionRegistrationFailed: auditEventSessionRegistrationFailed,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			AccountDisabled:    ErrAccountDisabled,
			AccountLocked:      ErrAccountLocked,
			InvalidTOTP:        ErrInvalidTOTP,
			StorageUnavailable: ErrStorageUnavailable,
		},
	}
	if e.sessions != nil {
		login.CreateSession = e.sessions.Create
	}

	refreshDeps := flows.RefreshDeps{
		Now:         e.now,
		Logger:      e.logger.Named("refresh"),
		Store:       e.refresh,
		FindUser:    e.creds.FindByID,
		IsLocked:    e.lockout.IsLocked,
		IssueAccess: e.codec.IssueAccessForSession,
	}

	authenticate := flows.AuthenticateDeps{
		Logger: e.logger.Named("authenticate"),
		Verify: e.codec.Verify,
	}
	if e.codec.SlidingEnabled() {
		authenticate.Renew = e.codec.RenewForActivity
	}

	logout := flows.LogoutDeps{
		Verify:    e.codec.Verify,
		Blacklist: e.revocation.Blacklist,
		Refresh:   e.refresh,
	}

	sessions := flows.SessionDeps{
		Refresh:            e.refresh,
		EngineNotReadyErr:  ErrEngineNotReady,
		SessionNotFoundErr: ErrSessionNotFound,
	}

	// A nil *session.Registry must stay a nil interface.
	if e.sessions != nil {
		refreshDeps.Sessions = e.sessions
		authenticate.Sessions = e.sessions
		logout.Sessions = e.sessions
		sessions.Sessions = e.sessions
	}

	totpDeps := flows.TOTPDeps{
		Now:          e.now,
		FindUserByID: e.creds.FindByID,
		UpdateTOTP:   e.creds.UpdateTOTP,
		Generate: func(account string) (flows.TOTPEnrollment, error) {
			enr, err := e.totp.Generate(account)
			if err != nil {
				return flows.TOTPEnrollment{}, err
			}
			return flows.TOTPEnrollment{Secret: enr.Secret, URI: enr.URI}, nil
		},
		Validate:  e.totp.Validate,
		MetricInc: inc,
		EmitAudit: audit,
		Metrics: flows.TOTPMetrics{
			TOTPFailure: int(MetricTOTPFailure),
			TOTPSuccess: int(MetricTOTPSuccess),
		},
		Events: flows.TOTPEvents{
			TOTPSetupRequested: auditEventTOTPSetupRequested,
			TOTPEnabled:        auditEventTOTPEnabled,
			TOTPDisabled:       auditEventTOTPDisabled,
			TOTPFailure:        auditEventTOTPFailure,
		},
		Errors: flows.TOTPErrors{
			EngineNotReady:     ErrEngineNotReady,
			UserNotFound:       ErrUserNotFound,
			TOTPNotConfigured:  ErrTOTPNotConfigured,
			TOTPAlreadyEnabled: ErrTOTPAlreadyEnabled,
			InvalidTOTP:        ErrInvalidTOTP,
			StorageUnavailable: ErrStorageUnavailable,
		},
	}

	account := flows.AccountDeps{
		FindUser:           e.creds.FindByIdentifier,
		FindUserByID:       e.creds.FindByID,
		UpdatePasswordHash: e.creds.UpdatePasswordHash,
		UpdateLockState:    e.creds.UpdateLockState,
		VerifyPassword:     e.hasher.Verify,
		HashPassword: func(plain string) (string, error) {
			hash, err := e.hasher.Hash(plain)
			return hash, passwordErr(err)
		},
		Unlock:    e.lockout.Unlock,
		MetricInc: inc,
		EmitAudit: audit,
		Metrics: flows.AccountMetrics{
			PasswordChangeSuccess:       int(MetricPasswordChangeSuccess),
			PasswordChangeInvalidOld:    int(MetricPasswordChangeInvalidOld),
			PasswordChangeReuseRejected: int(MetricPasswordChangeReuseRejected),
			AccountUnlocked:             int(MetricAccountUnlocked),
		},
		Events: flows.AccountEvents{
			PasswordChanged:       auditEventPasswordChangeSuccess,
			PasswordChangeFailure: auditEventPasswordChangeFailure,
			AccountUnlocked:       auditEventAccountUnlocked,
		},
		Errors: flows.AccountErrors{
			EngineNotReady:     ErrEngineNotReady,
			UserNotFound:       ErrUserNotFound,
			InvalidCredentials: ErrInvalidCredentials,
			PasswordReuse:      ErrPasswordReuse,
			StorageUnavailable: ErrStorageUnavailable,
		},
	}

	e.flows = flows.New(flows.Deps{
		Login:        login,
		Refresh:      refreshDeps,
		Authenticate: authenticate,
		Logout:       logout,
		Sessions:     sessions,
		TOTP:         totpDeps,
		Account:      account,
	})
}

// dummyVerify checks plain against a throwaway hash built at startup.
func (e *Engine) dummyVerify(plain string) {
	_, _ = e.hasher.Verify(plain, e.dummyHash)
}

var (
	_ flows.RefreshTokenStore           = (*refresh.Store)(nil)
	_ flows.LogoutRefreshStore          = (*refresh.Store)(nil)
	_ flows.SessionRefreshStore         = (*refresh.Store)(nil)
	_ flows.RefreshSessionRegistry      = (*session.Registry)(nil)
	_ flows.AuthenticateSessionRegistry = (*session.Registry)(nil)
	_ flows.LogoutSessionRegistry       = (*session.Registry)(nil)
	_ flows.SessionRegistry             = (*session.Registry)(nil)
)
