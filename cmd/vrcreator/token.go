package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gosuda/vrcreator/internal/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		role    string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API, relay and MCP endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Auth.Secret == "" {
				return errors.New("VRC_AUTH_SECRET is unset; auth is disabled and no token is needed")
			}
			if ttl <= 0 {
				ttl = a.cfg.Auth.TokenTTL
			}
			token, err := auth.IssueToken(a.cfg.Auth.Secret, subject, role, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleOperator, "token role: operator or viewer")
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to VRC_AUTH_TOKEN_TTL)")
	return cmd
}
