package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aqryuz/authcore/credential"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-password-123"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type testEnv struct {
	engine *Engine
	users  *credential.Memory
	clock  *testClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

// advance moves the engine clock and the miniredis clock together.
func (env *testEnv) advance(d time.Duration) {
	env.clock.mu.Lock()
	env.clock.now = env.clock.now.Add(d)
	env.clock.mu.Unlock()
	env.mr.FastForward(d)
	env.mr.SetTime(env.clock.Now())
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEnv(t *testing.T, cfg Config, sink AuditSink) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mr.SetTime(clock.now)
	users := credential.NewMemory()

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(users).
		WithClock(clock.Now)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, users: users, clock: clock, mr: mr, rdb: rdb}
}

func (env *testEnv) addUser(t *testing.T, username string, mutate func(*credential.User)) *credential.User {
	t.Helper()

	hash, err := env.engine.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	u := &credential.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Enabled:      true,
		Roles:        []string{"member"},
	}
	if mutate != nil {
		mutate(u)
	}
	if err := env.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (env *testEnv) login(t *testing.T, identifier string) *LoginResult {
	t.Helper()

	res, err := env.engine.Login(laptopCtx(), LoginRequest{Identifier: identifier, Password: testPassword})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.TOTPRequired {
		t.Fatalf("unexpected TOTP prompt")
	}
	return res
}

func laptopCtx() context.Context {
	return WithUserAgent(WithClientIP(context.Background(), "203.0.113.10"),
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
}

func phoneCtx() context.Context {
	return WithUserAgent(WithClientIP(context.Background(), "198.51.100.20"),
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1")
}
