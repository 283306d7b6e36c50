package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/forum/internal/auth"
)

var tokenRole string

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a signed API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ttl, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
		if err != nil {
			return fmt.Errorf("auth.jwt_expires_in: %w", err)
		}
		token, expiresAt, err := auth.GenerateToken(args[0], tokenRole, cfg.Auth.JWTSecret, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleMember, "token role (member or admin)")
}
