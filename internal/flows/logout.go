package flows

import (
	"context"
	"errors"
	"time"

	"github.com/aqryuz/authcore/jwt"
	"github.com/aqryuz/authcore/refresh"
	"github.com/aqryuz/authcore/session"
)

// ReasonLogout is recorded on sessions ended by an explicit logout.
const ReasonLogout = "user logout"

type LogoutRefreshStore interface {
	Revoke(ctx context.Context, presented string) (string, error)
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}

type LogoutSessionRegistry interface {
	Revoke(ctx context.Context, id, actor, reason string) error
	RevokeAll(ctx context.Context, userID, actor, reason string) (int, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Verify    func(context.Context, string) (*jwt.Claims, error)
	Blacklist func(ctx context.Context, token string, expiresAt time.Time) error

	Refresh  LogoutRefreshStore
	Sessions LogoutSessionRegistry
}

type LogoutResult struct {
	UserID    string
	SessionID string

	AccessBlacklisted bool
	RefreshRevoked    bool
	SessionRevoked    bool

	Err error
}

// RunLogout ends one session. Every step is idempotent: an already
// blacklisted access token, an unknown refresh token or an already revoked
// session is not an error. Expired or malformed access tokens are skipped.
func RunLogout(ctx context.Context, accessToken, refreshToken string, deps LogoutDeps) LogoutResult {
	var out LogoutResult
	var errs []error

	if accessToken != "" {
		claims, err := deps.Verify(ctx, accessToken)
		switch {
		case err == nil:
			out.UserID = claims.Subject
			out.SessionID = claims.SessionID
			if claims.ExpiresAt != nil {
				if err := deps.Blacklist(ctx, accessToken, claims.ExpiresAt.Time); err != nil {
					errs = append(errs, err)
				} else {
					out.AccessBlacklisted = true
				}
			}
		case errors.Is(err, jwt.ErrRevocationCheck):
			errs = append(errs, err)
		}
	}

	if refreshToken != "" && deps.Refresh != nil {
		sid, err := deps.Refresh.Revoke(ctx, refreshToken)
		switch {
		case err == nil:
			// An unknown token yields an empty sid.
			out.RefreshRevoked = sid != ""
			if out.SessionID == "" {
				out.SessionID = sid
			}
		case errors.Is(err, refresh.ErrNotFound):
		default:
			errs = append(errs, err)
		}
	}

	if out.SessionID != "" && deps.Sessions != nil {
		actor := out.UserID
		if actor == "" {
			actor = "user"
		}
		err := deps.Sessions.Revoke(ctx, out.SessionID, actor, ReasonLogout)
		switch {
		case err == nil:
			out.SessionRevoked = true
		case errors.Is(err, session.ErrNotFound):
		default:
			errs = append(errs, err)
		}
	}

	out.Err = errors.Join(errs...)
	return out
}

type LogoutAllResult struct {
	RefreshRevoked  int
	SessionsRevoked int
	Err             error
}

// RunLogoutAll revokes every refresh token and session of userID.
func RunLogoutAll(ctx context.Context, userID, actor string, deps LogoutDeps) LogoutAllResult {
	var out LogoutAllResult
	var errs []error

	if deps.Refresh != nil {
		n, err := deps.Refresh.RevokeAllForUser(ctx, userID)
		out.RefreshRevoked = n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if deps.Sessions != nil {
		n, err := deps.Sessions.RevokeAll(ctx, userID, actor, ReasonLogout)
		out.SessionsRevoked = n
		if err != nil {
			errs = append(errs, err)
		}
	}

	out.Err = errors.Join(errs...)
	return out
}
