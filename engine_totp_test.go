package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func enrollTOTP(t *testing.T, env *testEnv, userID string) string {
	t.Helper()

	enr, err := env.engine.BeginTOTPEnrollment(context.Background(), userID)
	if err != nil {
		t.Fatalf("begin enrollment: %v", err)
	}
	code, err := env.engine.totp.Code(enr.Secret, env.clock.Now())
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if err := env.engine.ConfirmTOTPEnrollment(context.Background(), userID, code); err != nil {
		t.Fatalf("confirm enrollment: %v", err)
	}
	return enr.Secret
}

func TestTOTPEnrollmentURI(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)

	enr, err := env.engine.BeginTOTPEnrollment(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("begin enrollment: %v", err)
	}
	if enr.Secret == "" || !strings.HasPrefix(enr.URI, "otpauth://totp/") {
		t.Fatalf("unexpected enrollment %+v", enr)
	}
	if !strings.Contains(enr.URI, "issuer=authcore") {
		t.Fatalf("expected issuer in URI, got %s", enr.URI)
	}

	// A pending secret does not gate login.
	env.login(t, "alice")
}

func TestTOTPConfirmRejectsWrongCode(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)

	if err := env.engine.ConfirmTOTPEnrollment(context.Background(), u.ID, "123456"); !errors.Is(err, ErrTOTPNotConfigured) {
		t.Fatalf("expected ErrTOTPNotConfigured before enrollment, got %v", err)
	}
	if _, err := env.engine.BeginTOTPEnrollment(context.Background(), u.ID); err != nil {
		t.Fatalf("begin enrollment: %v", err)
	}
	if err := env.engine.ConfirmTOTPEnrollment(context.Background(), u.ID, "abcdef"); !errors.Is(err, ErrInvalidTOTP) {
		t.Fatalf("expected ErrInvalidTOTP, got %v", err)
	}
	if env.engine.MetricsSnapshot().Counters[MetricTOTPFailure] != 1 {
		t.Fatalf("expected TOTP failure metric")
	}
}

func TestTOTPAlreadyEnabled(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)
	enrollTOTP(t, env, u.ID)

	if _, err := env.engine.BeginTOTPEnrollment(context.Background(), u.ID); !errors.Is(err, ErrTOTPAlreadyEnabled) {
		t.Fatalf("expected ErrTOTPAlreadyEnabled, got %v", err)
	}
}

func TestTOTPCodeFromAdjacentStepAccepted(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)
	secret := enrollTOTP(t, env, u.ID)

	code, err := env.engine.totp.Code(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	env.advance(30 * time.Second)
	if _, err := env.engine.Login(laptopCtx(), LoginRequest{Identifier: "alice", Password: testPassword, TOTPCode: code}); err != nil {
		t.Fatalf("expected one step of skew to be accepted: %v", err)
	}

	env.advance(2 * time.Minute)
	if _, err := env.engine.Login(laptopCtx(), LoginRequest{Identifier: "alice", Password: testPassword, TOTPCode: code}); !errors.Is(err, ErrInvalidTOTP) {
		t.Fatalf("expected stale code to be rejected, got %v", err)
	}
}

func TestDisableTOTP(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)
	secret := enrollTOTP(t, env, u.ID)

	if err := env.engine.DisableTOTP(context.Background(), u.ID, "000000"); !errors.Is(err, ErrInvalidTOTP) {
		t.Fatalf("expected ErrInvalidTOTP, got %v", err)
	}
	code, err := env.engine.totp.Code(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if err := env.engine.DisableTOTP(context.Background(), u.ID, code); err != nil {
		t.Fatalf("disable failed: %v", err)
	}

	env.login(t, "alice")
	if err := env.engine.DisableTOTP(context.Background(), u.ID, ""); !errors.Is(err, ErrTOTPNotConfigured) {
		t.Fatalf("expected ErrTOTPNotConfigured, got %v", err)
	}
}
