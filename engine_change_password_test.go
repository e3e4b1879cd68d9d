package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestChangePasswordSuccess(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)
	const next = "another-password-456"

	if err := env.engine.ChangePassword(context.Background(), u.ID, testPassword, next); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if _, err := env.engine.Login(laptopCtx(), LoginRequest{Identifier: "alice", Password: testPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := env.engine.Login(laptopCtx(), LoginRequest{Identifier: "alice", Password: next}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if env.engine.MetricsSnapshot().Counters[MetricPasswordChangeSuccess] != 1 {
		t.Fatalf("expected success metric")
	}
}

func TestChangePasswordInvalidOld(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)

	err := env.engine.ChangePassword(context.Background(), u.ID, "wrong-password", "another-password-456")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if env.engine.MetricsSnapshot().Counters[MetricPasswordChangeInvalidOld] != 1 {
		t.Fatalf("expected invalid old password metric")
	}
	env.login(t, "alice")
}

func TestChangePasswordReuseRejected(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)

	if err := env.engine.ChangePassword(context.Background(), u.ID, testPassword, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
}

func TestChangePasswordPolicy(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)

	if err := env.engine.ChangePassword(context.Background(), u.ID, testPassword, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	env.login(t, "alice")
}

func TestChangePasswordUnknownUser(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)

	if err := env.engine.ChangePassword(context.Background(), "missing", testPassword, "another-password-456"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
