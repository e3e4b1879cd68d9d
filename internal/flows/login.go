package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aqryuz/authcore/credential"
	"github.com/aqryuz/authcore/fingerprint"
	"github.com/aqryuz/authcore/jwt"
	"github.com/aqryuz/authcore/lockout"
	"github.com/aqryuz/authcore/refresh"
	"github.com/aqryuz/authcore/session"
	"go.uber.org/zap"
)

// LoginRequest is the flow-local login input.
type LoginRequest struct {
	Identifier string
	Password   string
	TOTPCode   string
	RememberMe bool
	Client     fingerprint.Context
}

// LoginResult is either a TOTP prompt or an issued token pair.
type LoginResult struct {
	User         *credential.User
	TOTPRequired bool

	AccessToken  string
	AccessClaims *jwt.Claims
	RefreshToken string
	Refresh      *refresh.Record
	Session      *session.Session
	Warnings     []string
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess              int
	LoginFailure              int
	AccountLocked             int
	TOTPRequired              int
	TOTPFailure               int
	SessionCreated            int
	SessionEvicted            int
	SessionRegistrationFailed int
	RefreshEvicted            int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess              string
	LoginFailure              string
	AccountLocked             string
	TOTPRequired              string
	TOTPFailure               string
	SessionRegistrationFailed string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	AccountDisabled    error
	AccountLocked      error
	InvalidTOTP        error
	StorageUnavailable error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	PasswordUpgradeOnLogin bool

	Now    func() time.Time
	Logger *zap.Logger

	FindUser           func(context.Context, string) (*credential.User, error)
	UpdateLockState    func(context.Context, string, func(credential.LockState) credential.LockState) (credential.LockState, error)
	UpdateLastLogin    func(context.Context, string, time.Time) error
	UpdatePasswordHash func(context.Context, string, string) error

	VerifyPassword       func(string, string) (bool, error)
	DummyVerify          func(string)
	PasswordNeedsUpgrade func(string) (bool, error)
	HashPassword         func(string) (string, error)
	VerifyTOTP           func(secret, code string, at time.Time) (bool, error)

	IsLocked  func(credential.LockState, time.Time) bool
	OnFailure func(credential.LockState, time.Time) (credential.LockState, lockout.Decision)
	OnSuccess func(credential.LockState) credential.LockState

	IssueAccess   func(subject string, roles []string) (string, *jwt.Claims, error)
	CreateRefresh func(context.Context, refresh.CreateParams) (*refresh.Issued, []string, error)
	CreateSession func(context.Context, session.CreateParams) (*session.Session, []string, error)

	MetricInc func(int)
	MetricAdd func(int, uint64)
	EmitAudit AuditFunc

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// AuditFunc emits one audit event. meta is evaluated lazily.
type AuditFunc func(ctx context.Context, event string, success bool, userID, sessionID string, err error, meta func() map[string]string)

// WarnSessionNotRegistered is reported in LoginResult.Warnings when the
// session registry rejected the new session.
const WarnSessionNotRegistered = "session registration failed; tokens remain valid"

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.MetricAdd == nil {
		deps.MetricAdd = func(int, uint64) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.DummyVerify == nil {
		deps.DummyVerify = func(string) {}
	}
}

// RunLogin walks CredentialsPending → CredentialsVerified → TOTP → Issued.
// A nil error with TOTPRequired set means the caller must resubmit with a code.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) (*LoginResult, error) {
	normalizeLoginDeps(&deps)
	if deps.FindUser == nil ||
		deps.UpdateLockState == nil ||
		deps.VerifyPassword == nil ||
		deps.IsLocked == nil ||
		deps.OnFailure == nil ||
		deps.OnSuccess == nil ||
		deps.IssueAccess == nil ||
		deps.CreateRefresh == nil {
		return nil, deps.Errors.EngineNotReady
	}

	fail := func(userID, reason string, err error) {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, "", err, func() map[string]string {
			return map[string]string{
				"identifier": req.Identifier,
				"reason":     reason,
			}
		})
	}

	user, err := deps.FindUser(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			deps.DummyVerify(req.Password)
			fail("", "user_not_found", deps.Errors.InvalidCredentials)
			return nil, deps.Errors.InvalidCredentials
		}
		fail("", "store_unavailable", err)
		return nil, fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}

	if !user.Enabled {
		fail(user.ID, "account_disabled", deps.Errors.AccountDisabled)
		return nil, deps.Errors.AccountDisabled
	}

	now := deps.Now()
	if deps.IsLocked(user.Lock, now) {
		fail(user.ID, "account_locked", deps.Errors.AccountLocked)
		return nil, deps.Errors.AccountLocked
	}

	ok, err := deps.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		locked, lockErr := recordFailure(ctx, user, now, &deps)
		if lockErr != nil {
			fail(user.ID, "lock_state_unavailable", lockErr)
			return nil, lockErr
		}
		if locked {
			fail(user.ID, "password_mismatch_locked", deps.Errors.AccountLocked)
			return nil, deps.Errors.AccountLocked
		}
		fail(user.ID, "password_mismatch", deps.Errors.InvalidCredentials)
		return nil, deps.Errors.InvalidCredentials
	}

	if deps.PasswordUpgradeOnLogin {
		upgradePassword(ctx, user, req.Password, &deps)
	}

	if user.TOTPEnabled {
		if deps.VerifyTOTP == nil {
			return nil, deps.Errors.EngineNotReady
		}
		if req.TOTPCode == "" {
			deps.MetricInc(deps.Metrics.TOTPRequired)
			deps.EmitAudit(ctx, deps.Events.TOTPRequired, true, user.ID, "", nil, nil)
			return &LoginResult{User: user, TOTPRequired: true}, nil
		}
		valid, err := deps.VerifyTOTP(user.TOTPSecret, req.TOTPCode, now)
		if err != nil || !valid {
			deps.MetricInc(deps.Metrics.TOTPFailure)
			deps.EmitAudit(ctx, deps.Events.TOTPFailure, false, user.ID, "", deps.Errors.InvalidTOTP, nil)
			if _, lockErr := recordFailure(ctx, user, now, &deps); lockErr != nil {
				return nil, lockErr
			}
			return nil, deps.Errors.InvalidTOTP
		}
	}

	// The snapshot may predate a concurrent failure, so reset unconditionally.
	if _, err := deps.UpdateLockState(ctx, user.ID, deps.OnSuccess); err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}

	return issueLoginTokens(ctx, user, req, now, &deps)
}

// recordFailure applies OnFailure under the store's per-user lock and reports
// whether this failure locked the account.
func recordFailure(ctx context.Context, user *credential.User, now time.Time, deps *LoginDeps) (bool, error) {
	var decision lockout.Decision
	_, err := deps.UpdateLockState(ctx, user.ID, func(s credential.LockState) credential.LockState {
		next, d := deps.OnFailure(s, now)
		decision = d
		return next
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}
	if !decision.Locked {
		return false, nil
	}
	if decision.Extended {
		deps.Logger.Warn("lockout extended",
			zap.String("user_id", user.ID),
			zap.Time("locked_until", decision.LockedUntil),
		)
		return true, nil
	}

	deps.MetricInc(deps.Metrics.AccountLocked)
	deps.EmitAudit(ctx, deps.Events.AccountLocked, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{
			"locked_until": decision.LockedUntil.UTC().Format(time.RFC3339),
			"duration":     decision.Duration.String(),
		}
	})
	deps.Logger.Warn("account locked",
		zap.String("user_id", user.ID),
		zap.Time("locked_until", decision.LockedUntil),
		zap.Duration("duration", decision.Duration),
	)
	return true, nil
}

func upgradePassword(ctx context.Context, user *credential.User, password string, deps *LoginDeps) {
	if deps.PasswordNeedsUpgrade == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return
	}
	needs, err := deps.PasswordNeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := deps.HashPassword(password)
	if err != nil {
		deps.Logger.Warn("password hash upgrade generation failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if err := deps.UpdatePasswordHash(ctx, user.ID, upgraded); err != nil {
		deps.Logger.Warn("password hash upgrade update failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func issueLoginTokens(ctx context.Context, user *credential.User, req LoginRequest, now time.Time, deps *LoginDeps) (*LoginResult, error) {
	access, claims, err := deps.IssueAccess(user.ID, user.Roles)
	if err != nil {
		return nil, err
	}

	issued, evictedRefresh, err := deps.CreateRefresh(ctx, refresh.CreateParams{
		UserID:     user.ID,
		SessionID:  claims.SessionID,
		RememberMe: req.RememberMe,
		Client:     req.Client,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}
	if n := len(evictedRefresh); n > 0 {
		deps.MetricAdd(deps.Metrics.RefreshEvicted, uint64(n))
	}

	out := &LoginResult{
		User:         user,
		AccessToken:  access,
		AccessClaims: claims,
		RefreshToken: issued.Token,
		Refresh:      issued.Record,
	}

	if deps.CreateSession != nil {
		sess, evicted, err := deps.CreateSession(ctx, session.CreateParams{
			ID:         claims.SessionID,
			UserID:     user.ID,
			RememberMe: req.RememberMe,
			Client:     req.Client,
		})
		if err != nil {
			deps.Logger.Error("session registration failed",
				zap.String("user_id", user.ID),
				zap.String("session_id", claims.SessionID),
				zap.Error(err),
			)
			deps.MetricInc(deps.Metrics.SessionRegistrationFailed)
			deps.EmitAudit(ctx, deps.Events.SessionRegistrationFailed, false, user.ID, claims.SessionID, err, nil)
			out.Warnings = append(out.Warnings, WarnSessionNotRegistered)
		} else {
			out.Session = sess
			deps.MetricInc(deps.Metrics.SessionCreated)
			if n := len(evicted); n > 0 {
				deps.MetricAdd(deps.Metrics.SessionEvicted, uint64(n))
			}
		}
	}

	if deps.UpdateLastLogin != nil {
		if err := deps.UpdateLastLogin(ctx, user.ID, now); err != nil {
			deps.Logger.Warn("last login update failed", zap.String("user_id", user.ID), zap.Error(err))
		} else {
			user.LastLoginAt = now
		}
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, claims.SessionID, nil, func() map[string]string {
		return map[string]string{
			"ip":          req.Client.IP,
			"remember_me": fmt.Sprint(req.RememberMe),
		}
	})
	return out, nil
}
