package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aqryuz/authcore/credential"
	"github.com/aqryuz/authcore/jwt"
	"github.com/aqryuz/authcore/lockout"
	"github.com/aqryuz/authcore/refresh"
	"github.com/aqryuz/authcore/session"
)

var (
	errInvalid  = errors.New("invalid credentials")
	errDisabled = errors.New("disabled")
	errLocked   = errors.New("locked")
	errTOTP     = errors.New("invalid totp")
	errStorage  = errors.New("storage")
	errNotReady = errors.New("not ready")
)

type loginHarness struct {
	users     *credential.Memory
	now       time.Time
	verified  []string
	dummy     int
	sessions  int
	sessErr   error
	lastLogin time.Time
}

func newLoginHarness(t *testing.T) (*loginHarness, LoginDeps) {
	t.Helper()
	h := &loginHarness{users: credential.NewMemory(), now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	policy, err := lockout.New(lockout.Config{MaxFailedAttempts: 3, BaseDuration: 5 * time.Minute})
	if err != nil {
		t.Fatalf("lockout.New: %v", err)
	}

	deps := LoginDeps{
		Now:             func() time.Time { return h.now },
		FindUser:        h.users.FindByIdentifier,
		UpdateLockState: h.users.UpdateLockState,
		UpdateLastLogin: func(_ context.Context, _ string, at time.Time) error {
			h.lastLogin = at
			return nil
		},
		VerifyPassword: func(password, hash string) (bool, error) {
			h.verified = append(h.verified, password)
			return "hash:"+password == hash, nil
		},
		DummyVerify: func(string) { h.dummy++ },
		VerifyTOTP: func(secret, code string, _ time.Time) (bool, error) {
			return code == "123456", nil
		},
		IsLocked:  policy.IsLocked,
		OnFailure: policy.OnFailure,
		OnSuccess: policy.OnSuccess,
		IssueAccess: func(subject string, roles []string) (string, *jwt.Claims, error) {
			return "access-" + subject, &jwt.Claims{SessionID: "sid-1"}, nil
		},
		CreateRefresh: func(_ context.Context, p refresh.CreateParams) (*refresh.Issued, []string, error) {
			return &refresh.Issued{Token: "refresh", Record: &refresh.Record{UserID: p.UserID, SessionID: p.SessionID}}, nil, nil
		},
		CreateSession: func(_ context.Context, p session.CreateParams) (*session.Session, []string, error) {
			if h.sessErr != nil {
				return nil, nil, h.sessErr
			}
			h.sessions++
			return &session.Session{ID: p.ID, UserID: p.UserID}, nil, nil
		},
		Errors: LoginErrors{
			EngineNotReady:     errNotReady,
			InvalidCredentials: errInvalid,
			AccountDisabled:    errDisabled,
			AccountLocked:      errLocked,
			InvalidTOTP:        errTOTP,
			StorageUnavailable: errStorage,
		},
	}
	return h, deps
}

func (h *loginHarness) addUser(t *testing.T, u *credential.User) *credential.User {
	t.Helper()
	if err := h.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestRunLoginUnknownUserRunsDummyVerify(t *testing.T) {
	h, deps := newLoginHarness(t)

	_, err := RunLogin(context.Background(), LoginRequest{Identifier: "ghost", Password: "pw"}, deps)
	if !errors.Is(err, errInvalid) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if h.dummy != 1 {
		t.Fatalf("expected one dummy verification, got %d", h.dummy)
	}
}

func TestRunLoginDisabledBeforePassword(t *testing.T) {
	h, deps := newLoginHarness(t)
	h.addUser(t, &credential.User{Username: "alice", PasswordHash: "hash:pw", Enabled: false})

	_, err := RunLogin(context.Background(), LoginRequest{Identifier: "alice", Password: "wrong"}, deps)
	if !errors.Is(err, errDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}
	if len(h.verified) != 0 {
		t.Fatalf("password must not be checked for a disabled account")
	}
}

func TestRunLoginLockedSkipsPasswordCheck(t *testing.T) {
	h, deps := newLoginHarness(t)
	u := h.addUser(t, &credential.User{
		Username:     "bob",
		PasswordHash: "hash:pw",
		Enabled:      true,
		Lock:         credential.LockState{FailedAttempts: 3, Locked: true, LockedUntil: h.now.Add(time.Minute)},
	})

	_, err := RunLogin(context.Background(), LoginRequest{Identifier: "bob", Password: "pw"}, deps)
	if !errors.Is(err, errLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	if len(h.verified) != 0 {
		t.Fatalf("password must not be checked while locked")
	}

	h.now = h.now.Add(2 * time.Minute)
	res, err := RunLogin(context.Background(), LoginRequest{Identifier: "bob", Password: "pw"}, deps)
	if err != nil {
		t.Fatalf("login after expiry: %v", err)
	}
	got, _ := h.users.FindByID(context.Background(), u.ID)
	if got.Lock.FailedAttempts != 0 || got.Lock.Locked {
		t.Fatalf("expected lock state reset, got %+v", got.Lock)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected token pair")
	}
}

func TestRunLoginThirdFailureLocks(t *testing.T) {
	h, deps := newLoginHarness(t)
	h.addUser(t, &credential.User{Username: "carol", PasswordHash: "hash:pw", Enabled: true})

	for i := 0; i < 2; i++ {
		_, err := RunLogin(context.Background(), LoginRequest{Identifier: "carol", Password: "bad"}, deps)
		if !errors.Is(err, errInvalid) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	_, err := RunLogin(context.Background(), LoginRequest{Identifier: "carol", Password: "bad"}, deps)
	if !errors.Is(err, errLocked) {
		t.Fatalf("expected third failure to lock, got %v", err)
	}
	_, err = RunLogin(context.Background(), LoginRequest{Identifier: "carol", Password: "pw"}, deps)
	if !errors.Is(err, errLocked) {
		t.Fatalf("expected correct password to be rejected while locked, got %v", err)
	}
}

func TestRunLoginTOTPStates(t *testing.T) {
	h, deps := newLoginHarness(t)
	u := h.addUser(t, &credential.User{Username: "dave", PasswordHash: "hash:pw", Enabled: true, TOTPEnabled: true, TOTPSecret: "S"})

	res, err := RunLogin(context.Background(), LoginRequest{Identifier: "dave", Password: "pw"}, deps)
	if err != nil {
		t.Fatalf("expected nil error for missing code, got %v", err)
	}
	if !res.TOTPRequired || res.AccessToken != "" {
		t.Fatalf("expected TOTP prompt without tokens, got %+v", res)
	}

	_, err = RunLogin(context.Background(), LoginRequest{Identifier: "dave", Password: "pw", TOTPCode: "000000"}, deps)
	if !errors.Is(err, errTOTP) {
		t.Fatalf("expected invalid totp, got %v", err)
	}
	got, _ := h.users.FindByID(context.Background(), u.ID)
	if got.Lock.FailedAttempts != 1 {
		t.Fatalf("expected wrong code to count as a failure, got %d", got.Lock.FailedAttempts)
	}

	res, err = RunLogin(context.Background(), LoginRequest{Identifier: "dave", Password: "pw", TOTPCode: "123456"}, deps)
	if err != nil || res.AccessToken == "" {
		t.Fatalf("expected issued tokens, got %+v, %v", res, err)
	}
}

func TestRunLoginSessionFailureIsWarning(t *testing.T) {
	h, deps := newLoginHarness(t)
	h.addUser(t, &credential.User{Username: "erin", PasswordHash: "hash:pw", Enabled: true})
	h.sessErr = session.ErrUnavailable

	var failures int
	deps.MetricInc = func(id int) {
		if id == 7 {
			failures++
		}
	}
	deps.Metrics.SessionRegistrationFailed = 7

	res, err := RunLogin(context.Background(), LoginRequest{Identifier: "erin", Password: "pw"}, deps)
	if err != nil {
		t.Fatalf("session failure must not fail login: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected token pair")
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != WarnSessionNotRegistered {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
	if failures != 1 {
		t.Fatalf("expected registration failure metric")
	}
	if !h.lastLogin.Equal(h.now) {
		t.Fatalf("expected last login update")
	}
}

func TestRunLoginNotReady(t *testing.T) {
	_, err := RunLogin(context.Background(), LoginRequest{}, LoginDeps{Errors: LoginErrors{EngineNotReady: errNotReady}})
	if !errors.Is(err, errNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}
