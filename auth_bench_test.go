package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aqryuz/authcore/credential"
	"github.com/redis/go-redis/v9"
)

func BenchmarkAuthenticate(b *testing.B) {
	engine, access, _ := newBenchmarkEngine(b, true)

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authenticate(ctx, access); err != nil {
			b.Fatalf("authenticate failed: %v", err)
		}
	}
}

func BenchmarkAuthenticateWithoutSessions(b *testing.B) {
	engine, access, _ := newBenchmarkEngine(b, false)

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authenticate(ctx, access); err != nil {
			b.Fatalf("authenticate failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine, _, refreshToken := newBenchmarkEngine(b, true)

	ctx := laptopCtx()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := engine.Refresh(ctx, refreshToken)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		refreshToken = res.RefreshToken
	}
}

func BenchmarkLogin(b *testing.B) {
	engine, _, _ := newBenchmarkEngine(b, true)

	ctx := laptopCtx()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Login(ctx, LoginRequest{Identifier: "bench", Password: testPassword}); err != nil {
			b.Fatalf("login failed: %v", err)
		}
	}
}

func newBenchmarkEngine(b *testing.B, sessions bool) (*Engine, string, string) {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Session.Disabled = !sessions
	cfg.Session.MaxPerUser = 0
	cfg.Refresh.MaxPerUser = 0
	cfg.JWT.AccessTTL = time.Hour
	cfg.JWT.MaxSessionDuration = 24 * time.Hour
	cfg.Metrics.EnableLatencyHistograms = false

	users := credential.NewMemory()
	engine, err := New().WithConfig(cfg).WithRedis(rdb).WithCredentialStore(users).Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	hash, err := engine.HashPassword(testPassword)
	if err != nil {
		b.Fatalf("hash failed: %v", err)
	}
	if err := users.Create(context.Background(), &credential.User{Username: "bench", PasswordHash: hash, Enabled: true}); err != nil {
		b.Fatalf("create user: %v", err)
	}
	res, err := engine.Login(laptopCtx(), LoginRequest{Identifier: "bench", Password: testPassword})
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}
	return engine, res.AccessToken, res.RefreshToken
}
