package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aqryuz/authcore/credential"
)

// TOTPEnrollment is the secret and otpauth:// URI shown once to the user.
type TOTPEnrollment struct {
	Secret string
	URI    string
}

type TOTPMetrics struct {
	TOTPFailure int
	TOTPSuccess int
}

type TOTPEvents struct {
	TOTPSetupRequested string
	TOTPEnabled        string
	TOTPDisabled       string
	TOTPFailure        string
}

type TOTPErrors struct {
	EngineNotReady     error
	UserNotFound       error
	TOTPNotConfigured  error
	TOTPAlreadyEnabled error
	InvalidTOTP        error
	StorageUnavailable error
}

type TOTPDeps struct {
	Now func() time.Time

	FindUserByID func(context.Context, string) (*credential.User, error)
	UpdateTOTP   func(ctx context.Context, userID, secret string, enabled bool) error

	Generate func(account string) (TOTPEnrollment, error)
	Validate func(secret, code string, at time.Time) (bool, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics TOTPMetrics
	Events  TOTPEvents
	Errors  TOTPErrors
}

func normalizeTOTPDeps(deps *TOTPDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}

func (deps *TOTPDeps) ready() bool {
	return deps.FindUserByID != nil && deps.UpdateTOTP != nil && deps.Generate != nil && deps.Validate != nil
}

func (deps *TOTPDeps) loadUser(ctx context.Context, userID string) (*credential.User, error) {
	user, err := deps.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, deps.Errors.UserNotFound
		}
		return nil, fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}
	return user, nil
}

// RunBeginTOTPEnrollment stores a fresh, not yet enabled secret. Calling it
// again before confirmation replaces the pending secret.
func RunBeginTOTPEnrollment(ctx context.Context, userID string, deps TOTPDeps) (*TOTPEnrollment, error) {
	normalizeTOTPDeps(&deps)
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	user, err := deps.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TOTPEnabled {
		return nil, deps.Errors.TOTPAlreadyEnabled
	}

	account := user.Email
	if account == "" {
		account = user.Username
	}
	enrollment, err := deps.Generate(account)
	if err != nil {
		return nil, err
	}
	if err := deps.UpdateTOTP(ctx, user.ID, enrollment.Secret, false); err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}

	deps.EmitAudit(ctx, deps.Events.TOTPSetupRequested, true, user.ID, "", nil, nil)
	return &enrollment, nil
}

// RunConfirmTOTPEnrollment enables TOTP once the user proves possession of
// the pending secret.
func RunConfirmTOTPEnrollment(ctx context.Context, userID, code string, deps TOTPDeps) error {
	normalizeTOTPDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	user, err := deps.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPEnabled {
		return deps.Errors.TOTPAlreadyEnabled
	}
	if user.TOTPSecret == "" {
		return deps.Errors.TOTPNotConfigured
	}
	if err := verifyTOTP(ctx, user, code, &deps); err != nil {
		return err
	}
	if err := deps.UpdateTOTP(ctx, user.ID, user.TOTPSecret, true); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}

	deps.MetricInc(deps.Metrics.TOTPSuccess)
	deps.EmitAudit(ctx, deps.Events.TOTPEnabled, true, user.ID, "", nil, nil)
	return nil
}

// RunDisableTOTP turns TOTP off and discards the secret. A current code is
// required while TOTP is enabled.
func RunDisableTOTP(ctx context.Context, userID, code string, deps TOTPDeps) error {
	normalizeTOTPDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	user, err := deps.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		if user.TOTPSecret == "" {
			return deps.Errors.TOTPNotConfigured
		}
	} else if err := verifyTOTP(ctx, user, code, &deps); err != nil {
		return err
	}

	if err := deps.UpdateTOTP(ctx, user.ID, "", false); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}
	deps.EmitAudit(ctx, deps.Events.TOTPDisabled, true, user.ID, "", nil, nil)
	return nil
}

func verifyTOTP(ctx context.Context, user *credential.User, code string, deps *TOTPDeps) error {
	ok, err := deps.Validate(user.TOTPSecret, code, deps.Now())
	if err != nil || !ok {
		deps.MetricInc(deps.Metrics.TOTPFailure)
		deps.EmitAudit(ctx, deps.Events.TOTPFailure, false, user.ID, "", deps.Errors.InvalidTOTP, nil)
		return deps.Errors.InvalidTOTP
	}
	return nil
}
