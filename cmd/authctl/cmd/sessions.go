package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const cliActor = "authctl"

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and revoke user sessions",
	}
	c.AddCommand(
		newSessionsListCmd(opts),
		newSessionsRevokeCmd(opts),
		newSessionsRevokeAllCmd(opts),
	)
	return c
}

func newSessionsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <user-id>",
		Short: "List active sessions, most recently used first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			list, err := rt.engine.ListSessions(ctx, args[0], "")
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no active sessions")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tDEVICE\tIP\tLOCATION\tLAST ACTIVE\tEXPIRES")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.DeviceName, s.IP, s.Location,
					s.LastActivityAt.UTC().Format(time.RFC3339),
					s.ExpiresAt.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newSessionsRevokeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user-id> <session-id>",
		Short: "Revoke one session and its refresh tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.engine.RevokeSession(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked session %s\n", args[1])
			return nil
		},
	}
}

func newSessionsRevokeAllCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-all <user-id>",
		Short: "Revoke every session and refresh token of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.engine.LogoutAll(ctx, args[0], cliActor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked sessions=%d refresh_tokens=%d\n",
				res.SessionsRevoked, res.RefreshTokensRevoked)
			return nil
		},
	}
}
