package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matrimony/backend/internal/middleware"
	"github.com/matrimony/backend/internal/models"
)

// tokenCmd issues a bearer token for local testing against the configured secret.
var tokenCmd = &cobra.Command{
	Use:   "token USER_ID",
	Short: "Print a signed API token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg, _, err := setup()
		if err != nil {
			return err
		}
		token, err := middleware.SignToken(cfg.JWTSecret, args[0], role, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("role", models.RoleMember, "role claim: member, matchmaker or admin")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}
