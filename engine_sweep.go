package authcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sweep runs one pass over every store and retires expired records. Each
// store is swept even when another fails.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	if !e.ready() {
		return SweepReport{}, ErrEngineNotReady
	}

	var report SweepReport
	var errs []error
	var err error

	if report.RefreshTokens, err = e.sweepRefresh(ctx); err != nil {
		errs = append(errs, err)
	}
	if report.Sessions, err = e.sweepSessions(ctx); err != nil {
		errs = append(errs, err)
	}
	if report.Revocations, err = e.sweepRevocations(ctx); err != nil {
		errs = append(errs, err)
	}
	return report, errors.Join(errs...)
}

// RunSweepers sweeps each store on its own interval until ctx ends. It
// returns nil on cancellation; sweep failures are logged, not returned.
func (e *Engine) RunSweepers(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.sweepEvery(ctx, "refresh", e.config.Sweep.RefreshInterval, e.sweepRefresh)
		return nil
	})
	if e.sessions != nil {
		g.Go(func() error {
			e.sweepEvery(ctx, "session", e.config.Sweep.SessionInterval, e.sweepSessions)
			return nil
		})
	}
	g.Go(func() error {
		e.sweepEvery(ctx, "revocation", e.config.Sweep.RevocationInterval, e.sweepRevocations)
		return nil
	})
	return g.Wait()
}

func (e *Engine) sweepEvery(ctx context.Context, name string, every time.Duration, sweep func(context.Context) (int, error)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	log := e.logger.Named("sweeper").With(zap.String("store", name))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("swept expired records", zap.Int("count", n))
			}
		}
	}
}

func (e *Engine) sweepRefresh(ctx context.Context) (int, error) {
	n, err := e.refresh.SweepExpired(ctx, e.config.Sweep.BatchSize)
	if err != nil {
		return 0, storageErr(err)
	}
	e.metricAdd(MetricSweepRefreshExpired, uint64(n))
	return n, nil
}

func (e *Engine) sweepSessions(ctx context.Context) (int, error) {
	if e.sessions == nil {
		return 0, nil
	}
	n, err := e.sessions.SweepExpired(ctx, e.config.Sweep.BatchSize)
	if err != nil {
		return 0, storageErr(err)
	}
	e.metricAdd(MetricSweepSessionExpired, uint64(n))
	return n, nil
}

func (e *Engine) sweepRevocations(ctx context.Context) (int, error) {
	n, err := e.revocation.Sweep(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	e.metricAdd(MetricSweepRevocationExpired, uint64(n))
	return n, nil
}
