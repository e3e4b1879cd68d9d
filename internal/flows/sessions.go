package flows

import (
	"context"
	"errors"

	"github.com/aqryuz/authcore/refresh"
	"github.com/aqryuz/authcore/session"
)

// ReasonRevokedByUser is recorded on sessions a user ends from a session list.
const ReasonRevokedByUser = "revoked by user"

type SessionRegistry interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	ListActive(ctx context.Context, userID string) ([]*session.Session, error)
	Revoke(ctx context.Context, id, actor, reason string) error
	RevokeAllOthers(ctx context.Context, userID, exceptID, actor string) (int, error)
}

type SessionRefreshStore interface {
	ListActive(ctx context.Context, userID string) ([]*refresh.Record, error)
	RevokeByID(ctx context.Context, id string) error
}

type SessionDeps struct {
	Sessions SessionRegistry
	Refresh  SessionRefreshStore

	EngineNotReadyErr  error
	SessionNotFoundErr error
}

func RunListSessions(ctx context.Context, userID string, deps SessionDeps) ([]*session.Session, error) {
	if deps.Sessions == nil {
		return nil, deps.EngineNotReadyErr
	}
	return deps.Sessions.ListActive(ctx, userID)
}

// RunRevokeSession revokes sessionID on behalf of userID. A session owned by
// someone else is reported as not found.
func RunRevokeSession(ctx context.Context, userID, sessionID, actor string, deps SessionDeps) error {
	if deps.Sessions == nil {
		return deps.EngineNotReadyErr
	}

	sess, err := deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return deps.SessionNotFoundErr
		}
		return err
	}
	if sess.UserID != userID {
		return deps.SessionNotFoundErr
	}

	if err := deps.Sessions.Revoke(ctx, sessionID, actor, ReasonRevokedByUser); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return deps.SessionNotFoundErr
		}
		return err
	}
	return revokeRefreshWhere(ctx, userID, deps, func(r *refresh.Record) bool {
		return r.SessionID == sessionID
	})
}

// RunRevokeOtherSessions keeps exceptID and ends every other session of userID
// together with the refresh tokens bound to them.
func RunRevokeOtherSessions(ctx context.Context, userID, exceptID, actor string, deps SessionDeps) (int, error) {
	if deps.Sessions == nil {
		return 0, deps.EngineNotReadyErr
	}
	n, err := deps.Sessions.RevokeAllOthers(ctx, userID, exceptID, actor)
	if err != nil {
		return n, err
	}
	return n, revokeRefreshWhere(ctx, userID, deps, func(r *refresh.Record) bool {
		return r.SessionID != exceptID
	})
}

func revokeRefreshWhere(ctx context.Context, userID string, deps SessionDeps, match func(*refresh.Record) bool) error {
	if deps.Refresh == nil {
		return nil
	}
	records, err := deps.Refresh.ListActive(ctx, userID)
	if err != nil {
		return err
	}
	var errs []error
	for _, r := range records {
		if !match(r) {
			continue
		}
		if err := deps.Refresh.RevokeByID(ctx, r.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
