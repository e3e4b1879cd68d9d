package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/aqryuz/authcore"
	"github.com/spf13/cobra"
)

// newHashPasswordCmd reads the password from stdin so it never lands in
// shell history.
func newHashPasswordCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin with the configured algorithm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := loadSettings(opts)
			if err != nil {
				return err
			}
			hasher, err := authcore.NewPasswordHasher(cfg.Password)
			if err != nil {
				return err
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no password on stdin")
			}
			plain := strings.TrimRight(line, "\r\n")
			if plain == "" {
				return errors.New("empty password")
			}

			hash, err := hasher.Hash(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
