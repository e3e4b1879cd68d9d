package authcore

import (
	"context"
	"errors"

	"github.com/aqryuz/authcore/session"
	"go.uber.org/zap"
)

// ListSessions returns the active sessions of userID, most recently used
// first. currentSessionID marks the caller's own session and may be empty.
func (e *Engine) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrUserNotFound
	}

	list, err := e.flows.ListSessions(ctx, userID)
	if err != nil {
		return nil, mapSessionErr(err)
	}
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, toSessionInfo(s, currentSessionID))
	}
	return out, nil
}

// RevokeSession ends one of userID's sessions together with its refresh
// tokens. A session owned by another user is reported as ErrSessionNotFound.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return ErrSessionNotFound
	}

	if err := e.flows.RevokeSession(ctx, userID, sessionID, userID); err != nil {
		return mapSessionErr(err)
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, sessionID, nil, func() map[string]string {
		return map[string]string{"reason": "revoked_by_user"}
	})
	return nil
}

// RevokeOtherSessions keeps currentSessionID and ends every other session of
// userID. It returns how many sessions were revoked.
func (e *Engine) RevokeOtherSessions(ctx context.Context, userID, currentSessionID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrUserNotFound
	}

	n, err := e.flows.RevokeOtherSessions(ctx, userID, currentSessionID, userID)
	e.metricAdd(MetricSessionRevoked, uint64(n))
	if err != nil {
		return n, mapSessionErr(err)
	}
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, currentSessionID, nil, func() map[string]string {
		return map[string]string{"reason": "other_sessions"}
	})
	return n, nil
}

// RevokeAllSessions is the administrative form of LogoutAll: actor and reason
// are recorded on every revoked session.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID, actor, reason string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrUserNotFound
	}

	var errs []error
	n := 0
	if e.sessions != nil {
		revoked, err := e.sessions.RevokeAll(ctx, userID, actor, reason)
		if err != nil {
			errs = append(errs, err)
		}
		n = revoked
	}
	if _, err := e.refresh.RevokeAllForUser(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	e.metricAdd(MetricSessionRevoked, uint64(n))

	if err := errors.Join(errs...); err != nil {
		e.logger.Error("revoke all sessions incomplete", zap.String("user_id", userID), zap.Error(err))
		return n, storageErr(err)
	}
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{"actor": actor, "reason": reason}
	})
	return n, nil
}

func mapSessionErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEngineNotReady), errors.Is(err, ErrSessionNotFound):
		return err
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrRevoked):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrExpired):
		return ErrSessionExpired
	default:
		return storageErr(err)
	}
}
