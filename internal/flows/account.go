package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/aqryuz/authcore/credential"
)

type AccountMetrics struct {
	PasswordChangeSuccess       int
	PasswordChangeInvalidOld    int
	PasswordChangeReuseRejected int
	AccountUnlocked             int
}

type AccountEvents struct {
	PasswordChanged       string
	PasswordChangeFailure string
	AccountUnlocked       string
}

type AccountErrors struct {
	EngineNotReady     error
	UserNotFound       error
	InvalidCredentials error
	PasswordReuse      error
	StorageUnavailable error
}

// AccountDeps captures password change and unlock dependencies.
type AccountDeps struct {
	FindUser           func(context.Context, string) (*credential.User, error)
	FindUserByID       func(context.Context, string) (*credential.User, error)
	UpdatePasswordHash func(context.Context, string, string) error
	UpdateLockState    func(context.Context, string, func(credential.LockState) credential.LockState) (credential.LockState, error)

	VerifyPassword func(string, string) (bool, error)
	HashPassword   func(string) (string, error)
	Unlock         func(credential.LockState) credential.LockState

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics AccountMetrics
	Events  AccountEvents
	Errors  AccountErrors
}

func normalizeAccountDeps(deps *AccountDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}

func (deps *AccountDeps) lookup(ctx context.Context, find func(context.Context, string) (*credential.User, error), key string) (*credential.User, error) {
	user, err := find(ctx, key)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, deps.Errors.UserNotFound
		}
		return nil, fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}
	return user, nil
}

// RunChangePassword replaces the password hash after checking the current
// password. Hashing errors such as a too short password are returned as is.
func RunChangePassword(ctx context.Context, userID, oldPassword, newPassword string, deps AccountDeps) error {
	normalizeAccountDeps(&deps)
	if deps.FindUserByID == nil || deps.UpdatePasswordHash == nil || deps.VerifyPassword == nil || deps.HashPassword == nil {
		return deps.Errors.EngineNotReady
	}

	user, err := deps.lookup(ctx, deps.FindUserByID, userID)
	if err != nil {
		return err
	}

	ok, err := deps.VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		deps.MetricInc(deps.Metrics.PasswordChangeInvalidOld)
		deps.EmitAudit(ctx, deps.Events.PasswordChangeFailure, false, user.ID, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "invalid_old_password"}
		})
		return deps.Errors.InvalidCredentials
	}
	if oldPassword == newPassword {
		deps.MetricInc(deps.Metrics.PasswordChangeReuseRejected)
		deps.EmitAudit(ctx, deps.Events.PasswordChangeFailure, false, user.ID, "", deps.Errors.PasswordReuse, func() map[string]string {
			return map[string]string{"reason": "reuse"}
		})
		return deps.Errors.PasswordReuse
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := deps.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}

	deps.MetricInc(deps.Metrics.PasswordChangeSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordChanged, true, user.ID, "", nil, nil)
	return nil
}

// RunUnlockAccount clears the lockout and failure history of the user named
// by identifier and returns the user id.
func RunUnlockAccount(ctx context.Context, identifier, actor string, deps AccountDeps) (string, error) {
	normalizeAccountDeps(&deps)
	if deps.FindUser == nil || deps.UpdateLockState == nil || deps.Unlock == nil {
		return "", deps.Errors.EngineNotReady
	}

	user, err := deps.lookup(ctx, deps.FindUser, identifier)
	if err != nil {
		return "", err
	}
	if _, err := deps.UpdateLockState(ctx, user.ID, deps.Unlock); err != nil {
		return "", fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}

	deps.MetricInc(deps.Metrics.AccountUnlocked)
	deps.EmitAudit(ctx, deps.Events.AccountUnlocked, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"actor": actor}
	})
	return user.ID, nil
}
