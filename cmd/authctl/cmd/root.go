package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	dev        bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "authctl",
		Short: "Operator tooling for authcore deployments",
		Long: `authctl runs maintenance against the Redis and Postgres backends of an
authcore deployment: expiry sweeps, session administration, account unlocks
and password hashing for seeding credential stores.

Settings come from --config and AUTHCORE_* environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a config file (yaml, json, toml or env)")
	root.PersistentFlags().BoolVar(&opts.dev, "dev", false, "use the human-readable development logger")

	root.AddCommand(
		newSweepCmd(opts),
		newSessionsCmd(opts),
		newUnlockCmd(opts),
		newHashPasswordCmd(opts),
		newReportCmd(opts),
	)
	return root
}

// Execute runs authctl until it finishes or receives SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
