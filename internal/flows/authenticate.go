package flows

import (
	"context"
	"errors"

	"github.com/aqryuz/authcore/jwt"
	"github.com/aqryuz/authcore/session"
	"go.uber.org/zap"
)

// AuthenticateFailureKind classifies access-token failures for root-level mapping.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureMalformed
	AuthenticateFailureExpired
	AuthenticateFailureBlacklisted
	AuthenticateFailureSessionExpired
	AuthenticateFailureSessionNotFound
	AuthenticateFailureStorage
)

// AuthenticateResult carries the verified claims and the token the client
// should use from now on.
type AuthenticateResult struct {
	Failure AuthenticateFailureKind
	Err     error
	Claims  *jwt.Claims
	Token   string
	Renewed bool
}

type AuthenticateSessionRegistry interface {
	Touch(ctx context.Context, id string) error
	Revoke(ctx context.Context, id, actor, reason string) error
}

// AuthenticateDeps captures access-token validation dependencies.
type AuthenticateDeps struct {
	Logger *zap.Logger

	Verify func(context.Context, string) (*jwt.Claims, error)
	Renew  func(context.Context, string) (string, error)

	Sessions AuthenticateSessionRegistry
}

// RunAuthenticate verifies token, applies sliding renewal and records
// activity on the session.
func RunAuthenticate(ctx context.Context, token string, deps AuthenticateDeps) AuthenticateResult {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	claims, err := deps.Verify(ctx, token)
	if err != nil {
		return AuthenticateResult{Failure: classifyTokenError(err), Err: err}
	}

	current := token
	if deps.Renew != nil {
		renewed, err := deps.Renew(ctx, token)
		if err != nil {
			if errors.Is(err, jwt.ErrSessionCeiling) {
				endSession(ctx, claims, &deps)
			}
			return AuthenticateResult{Failure: classifyTokenError(err), Err: err, Claims: claims}
		}
		current = renewed
	}

	if deps.Sessions != nil {
		switch err := deps.Sessions.Touch(ctx, claims.SessionID); {
		case err == nil:
		case errors.Is(err, session.ErrNotFound):
			deps.Logger.Debug("access token without registered session",
				zap.String("user_id", claims.Subject),
				zap.String("session_id", claims.SessionID),
			)
		case errors.Is(err, session.ErrRevoked):
			return AuthenticateResult{Failure: AuthenticateFailureSessionNotFound, Err: err, Claims: claims}
		case errors.Is(err, session.ErrExpired):
			return AuthenticateResult{Failure: AuthenticateFailureSessionExpired, Err: err, Claims: claims}
		default:
			return AuthenticateResult{Failure: AuthenticateFailureStorage, Err: err, Claims: claims}
		}
	}

	out := AuthenticateResult{Claims: claims, Token: current}
	if current != token {
		renewedClaims, err := deps.Verify(ctx, current)
		if err != nil {
			return AuthenticateResult{Failure: classifyTokenError(err), Err: err, Claims: claims}
		}
		out.Claims = renewedClaims
		out.Renewed = true
	}
	return out
}

func endSession(ctx context.Context, claims *jwt.Claims, deps *AuthenticateDeps) {
	if deps.Sessions == nil {
		return
	}
	err := deps.Sessions.Revoke(ctx, claims.SessionID, session.ActorSystem, session.ReasonExpired)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		deps.Logger.Warn("session revoke at ceiling failed",
			zap.String("session_id", claims.SessionID),
			zap.Error(err),
		)
	}
}

func classifyTokenError(err error) AuthenticateFailureKind {
	switch {
	case errors.Is(err, jwt.ErrSessionCeiling):
		return AuthenticateFailureSessionExpired
	case errors.Is(err, jwt.ErrTokenBlacklisted):
		return AuthenticateFailureBlacklisted
	case errors.Is(err, jwt.ErrTokenExpired):
		return AuthenticateFailureExpired
	case errors.Is(err, jwt.ErrRevocationCheck):
		return AuthenticateFailureStorage
	default:
		return AuthenticateFailureMalformed
	}
}
