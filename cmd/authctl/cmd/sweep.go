package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	promexport "github.com/aqryuz/authcore/metrics/export/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var (
		watch       bool
		metricsAddr string
	)

	c := &cobra.Command{
		Use:   "sweep",
		Short: "Retire expired refresh tokens, sessions and revocation entries",
		Long: `Runs one sweep pass and prints what it retired. With --watch the
sweepers keep running on their configured intervals until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if !watch {
				report, err := rt.engine.Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refresh_tokens=%d sessions=%d revocations=%d\n",
					report.RefreshTokens, report.Sessions, report.Revocations)
				return nil
			}

			if metricsAddr != "" {
				srv, err := serveMetrics(rt, metricsAddr)
				if err != nil {
					return err
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			rt.logger.Info("sweepers running")
			if err := rt.engine.RunSweepers(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			rt.logger.Info("sweepers stopped")
			return nil
		},
	}
	c.Flags().BoolVar(&watch, "watch", false, "keep sweeping until interrupted")
	c.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watching")
	return c
}

func serveMetrics(rt *runtime, addr string) (*http.Server, error) {
	handler, err := promexport.Handler(rt.engine)
	if err != nil {
		return nil, fmt.Errorf("metrics handler: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	rt.logger.Info("serving metrics", zap.String("addr", addr))
	return srv, nil
}
