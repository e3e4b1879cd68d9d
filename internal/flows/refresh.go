package flows

import (
	"context"
	"errors"
	"time"

	"github.com/aqryuz/authcore/credential"
	"github.com/aqryuz/authcore/fingerprint"
	"github.com/aqryuz/authcore/jwt"
	"github.com/aqryuz/authcore/refresh"
	"github.com/aqryuz/authcore/session"
	"go.uber.org/zap"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureDeviceMismatch
	RefreshFailureStorage
	RefreshFailureUserNotFound
	RefreshFailureAccountDisabled
	RefreshFailureAccountLocked
	RefreshFailureSessionEnded
	RefreshFailureIssueAccess
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error

	UserID    string
	SessionID string

	AccessToken  string
	AccessClaims *jwt.Claims
	RefreshToken string
	Record       *refresh.Record

	// DeviceMismatch reports a fingerprint change that the store tolerated.
	DeviceMismatch bool
	// SessionMissing reports that no session was registered for the token.
	SessionMissing bool
}

type RefreshTokenStore interface {
	ValidateAndRotate(ctx context.Context, presented string, client fingerprint.Context) (*refresh.Issued, bool, error)
	RevokeByID(ctx context.Context, id string) error
}

type RefreshSessionRegistry interface {
	Touch(ctx context.Context, id string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now    func() time.Time
	Logger *zap.Logger

	Store    RefreshTokenStore
	Sessions RefreshSessionRegistry

	FindUser    func(context.Context, string) (*credential.User, error)
	IsLocked    func(credential.LockState, time.Time) bool
	IssueAccess func(subject, sessionID string, firstIssuedAt time.Time, roles []string) (string, *jwt.Claims, error)
}

// RunRefresh rotates a refresh token and issues an access token bound to the
// record's session id.
func RunRefresh(ctx context.Context, presented string, client fingerprint.Context, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	issued, mismatch, err := deps.Store.ValidateAndRotate(ctx, presented, client)
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrNotFound):
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		case errors.Is(err, refresh.ErrExpired):
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		case errors.Is(err, refresh.ErrDeviceMismatch):
			return RefreshResult{Failure: RefreshFailureDeviceMismatch, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureStorage, Err: err}
		}
	}

	rec := issued.Record
	out := RefreshResult{
		UserID:         rec.UserID,
		SessionID:      rec.SessionID,
		Record:         rec,
		DeviceMismatch: mismatch,
	}

	// reject retires the record; its rotated secret is never returned.
	reject := func(kind RefreshFailureKind, err error) RefreshResult {
		if revokeErr := deps.Store.RevokeByID(ctx, rec.ID); revokeErr != nil {
			deps.Logger.Warn("refresh record retirement failed",
				zap.String("record_id", rec.ID),
				zap.Error(revokeErr),
			)
		}
		out.Failure = kind
		out.Err = err
		return out
	}

	user, err := deps.FindUser(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return reject(RefreshFailureUserNotFound, err)
		}
		out.Failure = RefreshFailureStorage
		out.Err = err
		return out
	}
	if !user.Enabled {
		return reject(RefreshFailureAccountDisabled, nil)
	}
	now := deps.Now()
	if deps.IsLocked != nil && deps.IsLocked(user.Lock, now) {
		return reject(RefreshFailureAccountLocked, nil)
	}

	if deps.Sessions != nil && rec.SessionID != "" {
		switch err := deps.Sessions.Touch(ctx, rec.SessionID); {
		case err == nil:
		case errors.Is(err, session.ErrNotFound):
			out.SessionMissing = true
		case errors.Is(err, session.ErrRevoked), errors.Is(err, session.ErrExpired):
			return reject(RefreshFailureSessionEnded, err)
		default:
			out.Failure = RefreshFailureStorage
			out.Err = err
			return out
		}
	}

	access, claims, err := deps.IssueAccess(user.ID, rec.SessionID, now, user.Roles)
	if err != nil {
		out.Failure = RefreshFailureIssueAccess
		out.Err = err
		return out
	}

	out.AccessToken = access
	out.AccessClaims = claims
	out.RefreshToken = issued.Token
	return out
}
