package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aqryuz/authcore/credential"
	"github.com/aqryuz/authcore/password"
)

func TestLoginIssuesTokensAndSession(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)

	res := env.login(t, "alice")
	if res.UserID != u.ID {
		t.Fatalf("expected user %s, got %s", u.ID, res.UserID)
	}
	if res.AccessToken == "" || res.RefreshToken == "" || res.SessionID == "" {
		t.Fatalf("expected token pair and session id, got %+v", res)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
	if !res.AccessExpiresAt.Equal(env.clock.Now().Add(15 * time.Minute)) {
		t.Fatalf("unexpected access expiry %v", res.AccessExpiresAt)
	}

	info, err := env.engine.GetSessionInfo(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if info.UserID != u.ID || info.Browser != "Firefox" || info.IP != "203.0.113.10" {
		t.Fatalf("unexpected session info %+v", info)
	}

	stored, _ := env.users.FindByID(context.Background(), u.ID)
	if !stored.LastLoginAt.Equal(env.clock.Now()) {
		t.Fatalf("expected last login to be recorded, got %v", stored.LastLoginAt)
	}
}

func TestLoginByEmailIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	env.addUser(t, "alice", nil)

	if _, err := env.engine.Login(context.Background(), LoginRequest{Identifier: "ALICE@example.com", Password: testPassword}); err != nil {
		t.Fatalf("login by email failed: %v", err)
	}
}

func TestLoginUnknownUserAndWrongPasswordLookTheSame(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	env.addUser(t, "alice", nil)

	_, errUnknown := env.engine.Login(context.Background(), LoginRequest{Identifier: "nobody", Password: testPassword})
	_, errWrong := env.engine.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "wrong-password"})
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for both, got %v and %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("unknown user and wrong password must be indistinguishable")
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	env.addUser(t, "alice", func(u *credential.User) { u.Enabled = false })

	_, err := env.engine.Login(context.Background(), LoginRequest{Identifier: "alice", Password: testPassword})
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestLoginProgressiveLockout(t *testing.T) {
	cfg := testConfig()
	cfg.Lockout.MaxFailedAttempts = 3
	cfg.Lockout.BaseDuration = 5 * time.Minute
	cfg.Lockout.Progressive = true
	env := newTestEnv(t, cfg, nil)
	env.addUser(t, "alice", nil)

	fail := func() error {
		_, err := env.engine.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "wrong-password"})
		return err
	}

	for i := 0; i < 2; i++ {
		if err := fail(); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	if err := fail(); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected third failure to lock, got %v", err)
	}

	status, err := env.engine.LockStatus(context.Background(), "alice")
	if err != nil {
		t.Fatalf("lock status: %v", err)
	}
	if !status.Locked || status.Remaining != 5*time.Minute {
		t.Fatalf("expected 5m lockout, got %+v", status)
	}

	_, err = env.engine.Login(context.Background(), LoginRequest{Identifier: "alice", Password: testPassword})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected correct password to be refused while locked, got %v", err)
	}

	env.advance(5*time.Minute + time.Second)
	env.login(t, "alice")
	for i := 0; i < 2; i++ {
		if err := fail(); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("second cycle attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	if err := fail(); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected second lockout, got %v", err)
	}
	status, _ = env.engine.LockStatus(context.Background(), "alice")
	if status.Remaining != 10*time.Minute {
		t.Fatalf("expected doubled lockout of 10m, got %v", status.Remaining)
	}
	if env.engine.MetricsSnapshot().Counters[MetricAccountLocked] != 2 {
		t.Fatalf("expected two lockouts counted")
	}
}

func TestLoginSuccessResetsFailures(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)

	_, _ = env.engine.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "wrong-password"})
	env.login(t, "alice")

	stored, _ := env.users.FindByID(context.Background(), u.ID)
	if stored.Lock.FailedAttempts != 0 {
		t.Fatalf("expected failures reset, got %d", stored.Lock.FailedAttempts)
	}
}

func TestUnlockAccountClearsLockout(t *testing.T) {
	cfg := testConfig()
	cfg.Lockout.MaxFailedAttempts = 1
	env := newTestEnv(t, cfg, nil)
	env.addUser(t, "alice", nil)

	_, _ = env.engine.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "wrong-password"})
	if err := env.engine.UnlockAccount(context.Background(), "alice", "ops"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	env.login(t, "alice")

	if err := env.engine.UnlockAccount(context.Background(), "ghost", "ops"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLoginTOTPRequiredThenAccepted(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.addUser(t, "alice", nil)

	enr, err := env.engine.BeginTOTPEnrollment(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("begin enrollment: %v", err)
	}
	code, err := env.engine.totp.Code(enr.Secret, env.clock.Now())
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if err := env.engine.ConfirmTOTPEnrollment(context.Background(), u.ID, code); err != nil {
		t.Fatalf("confirm enrollment: %v", err)
	}

	res, err := env.engine.Login(context.Background(), LoginRequest{Identifier: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("expected nil error for TOTP prompt, got %v", err)
	}
	if !res.TOTPRequired || res.AccessToken != "" || res.RefreshToken != "" {
		t.Fatalf("expected TOTP prompt without tokens, got %+v", res)
	}
	if _, _, err := env.engine.LoginTokens(context.Background(), "alice", testPassword, ""); !errors.Is(err, ErrTOTPRequired) {
		t.Fatalf("expected ErrTOTPRequired from LoginTokens, got %v", err)
	}

	_, err = env.engine.Login(context.Background(), LoginRequest{Identifier: "alice", Password: testPassword, TOTPCode: "000000"})
	if !errors.Is(err, ErrInvalidTOTP) {
		t.Fatalf("expected ErrInvalidTOTP, got %v", err)
	}

	res, err = env.engine.Login(context.Background(), LoginRequest{Identifier: "alice", Password: testPassword, TOTPCode: code})
	if err != nil {
		t.Fatalf("login with code failed: %v", err)
	}
	if res.AccessToken == "" {
		t.Fatalf("expected tokens after TOTP")
	}
}

func TestLoginSessionRegistrationFailureIsWarning(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	env.addUser(t, "alice", nil)

	// Refresh and session keys share the server; poisoning the session
	// user index makes only session registration fail.
	if err := env.rdb.Set(context.Background(), "us:user:"+mustUserID(t, env, "alice"), "not-a-zset", 0).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res := env.login(t, "alice")
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected tokens despite session failure")
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
	if env.engine.MetricsSnapshot().Counters[MetricSessionRegistrationFailed] != 1 {
		t.Fatalf("expected registration failure metric")
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	bc, err := password.NewBcrypt(0)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	legacy, err := bc.Hash(testPassword)
	if err != nil {
		t.Fatalf("bcrypt hash: %v", err)
	}
	u := env.addUser(t, "alice", func(u *credential.User) { u.PasswordHash = legacy })

	env.login(t, "alice")

	stored, _ := env.users.FindByID(context.Background(), u.ID)
	if stored.PasswordHash == legacy {
		t.Fatalf("expected hash to be upgraded")
	}
	if needs, _ := env.engine.hasher.NeedsUpgrade(stored.PasswordHash); needs {
		t.Fatalf("upgraded hash still needs upgrade")
	}
	env.login(t, "alice")
}

func mustUserID(t *testing.T, env *testEnv, identifier string) string {
	t.Helper()
	u, err := env.users.FindByIdentifier(context.Background(), identifier)
	if err != nil {
		t.Fatalf("find %s: %v", identifier, err)
	}
	return u.ID
}

// interleavedStore records a failed attempt for the user right after the
// login has read its snapshot, as a concurrent bad-password request would.
type interleavedStore struct {
	*credential.Memory
	once sync.Once
}

func (s *interleavedStore) FindByIdentifier(ctx context.Context, identifier string) (*credential.User, error) {
	u, err := s.Memory.FindByIdentifier(ctx, identifier)
	if err != nil {
		return u, err
	}
	s.once.Do(func() {
		_, _ = s.Memory.UpdateLockState(ctx, u.ID, func(st credential.LockState) credential.LockState {
			st.FailedAttempts++
			return st
		})
	})
	return u, nil
}

func TestLoginResetsFailuresRecordedAfterSnapshot(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mr.SetTime(clock.now)
	store := &interleavedStore{Memory: credential.NewMemory()}

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	hash, err := engine.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	u := &credential.User{Username: "alice", Email: "alice@example.com", PasswordHash: hash, Enabled: true}
	if err := store.Memory.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := engine.Login(laptopCtx(), LoginRequest{Identifier: "alice", Password: testPassword}); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	stored, _ := store.Memory.FindByID(context.Background(), u.ID)
	if stored.Lock.FailedAttempts != 0 {
		t.Fatalf("expected failures reset after success, got %d", stored.Lock.FailedAttempts)
	}
}
