package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mcuctrl/internal/api"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("ttl") {
				ttl = time.Duration(a.cfg.API.Auth.TokenTTL) * time.Minute
			}
			token, err := api.IssueToken(a.cfg.API.Auth.Secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "mcuctrl", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default api.auth.token_ttl)")
	return cmd
}
