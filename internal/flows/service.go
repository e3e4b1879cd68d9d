package flows

import (
	"context"

	"github.com/aqryuz/authcore/fingerprint"
	"github.com/aqryuz/authcore/session"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.Verify != nil && s.deps.Login.FindUser != nil
}

func (s Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	return RunLogin(ctx, req, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, token string, client fingerprint.Context) RefreshResult {
	return RunRefresh(ctx, token, client, s.deps.Refresh)
}

func (s Service) Authenticate(ctx context.Context, token string) AuthenticateResult {
	return RunAuthenticate(ctx, token, s.deps.Authenticate)
}

func (s Service) Logout(ctx context.Context, accessToken, refreshToken string) LogoutResult {
	return RunLogout(ctx, accessToken, refreshToken, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, userID, actor string) LogoutAllResult {
	return RunLogoutAll(ctx, userID, actor, s.deps.Logout)
}

func (s Service) ListSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	return RunListSessions(ctx, userID, s.deps.Sessions)
}

func (s Service) RevokeSession(ctx context.Context, userID, sessionID, actor string) error {
	return RunRevokeSession(ctx, userID, sessionID, actor, s.deps.Sessions)
}

func (s Service) RevokeOtherSessions(ctx context.Context, userID, exceptID, actor string) (int, error) {
	return RunRevokeOtherSessions(ctx, userID, exceptID, actor, s.deps.Sessions)
}

func (s Service) BeginTOTPEnrollment(ctx context.Context, userID string) (*TOTPEnrollment, error) {
	return RunBeginTOTPEnrollment(ctx, userID, s.deps.TOTP)
}

func (s Service) ConfirmTOTPEnrollment(ctx context.Context, userID, code string) error {
	return RunConfirmTOTPEnrollment(ctx, userID, code, s.deps.TOTP)
}

func (s Service) DisableTOTP(ctx context.Context, userID, code string) error {
	return RunDisableTOTP(ctx, userID, code, s.deps.TOTP)
}

func (s Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	return RunChangePassword(ctx, userID, oldPassword, newPassword, s.deps.Account)
}

func (s Service) UnlockAccount(ctx context.Context, identifier, actor string) (string, error) {
	return RunUnlockAccount(ctx, identifier, actor, s.deps.Account)
}
