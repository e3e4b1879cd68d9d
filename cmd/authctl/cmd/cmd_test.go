package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aqryuz/authcore"
	"github.com/aqryuz/authcore/credential"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupEnv(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Setenv("AUTHCORE_REDIS_ADDR", mr.Addr())
	t.Setenv("AUTHCORE_JWT_SECRET", testSecret)
	return mr
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// seedSession logs a user in through a separate engine sharing the same
// Redis, the way an application process would.
func seedSession(t *testing.T, mr *miniredis.Miniredis) (userID, sessionID string) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(testSecret)
	cfg.Audit.Enabled = false
	users := credential.NewMemory()

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(users).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	hash, err := engine.HashPassword("correct-password-123")
	require.NoError(t, err)
	u := &credential.User{Username: "alice", Email: "alice@example.com", PasswordHash: hash, Enabled: true}
	require.NoError(t, users.Create(context.Background(), u))

	ctx := authcore.WithUserAgent(authcore.WithClientIP(context.Background(), "203.0.113.10"),
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	res, err := engine.Login(ctx, authcore.LoginRequest{Identifier: "alice", Password: "correct-password-123"})
	require.NoError(t, err)
	return u.ID, res.SessionID
}

func TestSweepPrintsReport(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "", "sweep", "--dev")
	require.NoError(t, err)
	assert.Equal(t, "refresh_tokens=0 sessions=0 revocations=0\n", out)
}

func TestSessionsListAndRevokeAll(t *testing.T) {
	mr := setupEnv(t)
	userID, sessionID := seedSession(t, mr)

	out, err := run(t, "", "sessions", "list", userID)
	require.NoError(t, err)
	assert.Contains(t, out, sessionID)
	assert.Contains(t, out, "203.0.113.10")

	out, err = run(t, "", "sessions", "revoke-all", userID)
	require.NoError(t, err)
	assert.Equal(t, "revoked sessions=1 refresh_tokens=1\n", out)

	out, err = run(t, "", "sessions", "list", userID)
	require.NoError(t, err)
	assert.Equal(t, "no active sessions\n", out)
}

func TestSessionsRevokeUnknown(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "", "sessions", "revoke", "user-1", "missing")
	require.ErrorIs(t, err, authcore.ErrSessionNotFound)
}

func TestUnlockUnknownUser(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "", "unlock", "ghost")
	require.ErrorIs(t, err, authcore.ErrUserNotFound)
}

func TestHashPasswordFromStdin(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "correct-password-123\n", "hash-password")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "$argon2id$"), out)

	_, err = run(t, "", "hash-password")
	require.Error(t, err)
}

func TestReportIsJSONWithoutKeys(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "", "report")
	require.NoError(t, err)
	assert.Contains(t, out, `"SigningAlgorithm": "hs256"`)
	assert.Contains(t, out, `"RedisAvailable": true`)
	assert.NotContains(t, out, testSecret)
}

func TestInvalidSettingsFailBeforeConnecting(t *testing.T) {
	setupEnv(t)
	t.Setenv("AUTHCORE_JWT_SECRET", "short")

	_, err := run(t, "", "sweep")
	require.Error(t, err)
}
