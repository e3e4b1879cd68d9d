package cmd

import (
	"context"
	"fmt"

	"github.com/aqryuz/authcore"
	"github.com/aqryuz/authcore/credential"
	"github.com/aqryuz/authcore/credential/postgres"
	"github.com/aqryuz/authcore/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// runtime holds everything a command needs against live backends.
type runtime struct {
	settings *config.Settings
	logger   *zap.Logger
	engine   *authcore.Engine
	closers  []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func newLogger(opts *rootOptions, s *config.Settings) (*zap.Logger, error) {
	if opts.dev || (s != nil && s.LogDevelopment) {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadSettings(opts *rootOptions) (*config.Settings, authcore.Config, error) {
	s, err := config.Load(opts.configPath)
	if err != nil {
		return nil, authcore.Config{}, err
	}
	cfg, err := s.EngineConfig()
	if err != nil {
		return nil, authcore.Config{}, err
	}
	return s, cfg, nil
}

// openRuntime connects Redis and the credential store and builds an engine.
// Without DATABASE_URL the credential store is in-memory, which is enough
// for commands that only touch Redis-held state.
func openRuntime(ctx context.Context, opts *rootOptions) (*runtime, error) {
	s, cfg, err := loadSettings(opts)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(opts, s)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	rt := &runtime{settings: s, logger: logger}
	rt.closers = append(rt.closers, func() { _ = logger.Sync() })

	rdb := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
	})
	rt.closers = append(rt.closers, func() { _ = rdb.Close() })

	var store credential.Store
	if s.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, s.DatabaseURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		store = postgres.New(pool)
	} else {
		logger.Warn("DATABASE_URL not set, credential store is in-memory")
		store = credential.NewMemory()
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithLogger(logger).
		WithAuditSink(authcore.NewZapSink(logger)).
		Build()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine
	rt.closers = append(rt.closers, engine.Close)
	return rt, nil
}
