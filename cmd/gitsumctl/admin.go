package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/gitsum/internal/app"
	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/middleware"
	"github.com/arturoeanton/gitsum/pkg/config"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// app.New migrates before returning.
			return withApp(func(a *app.App) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", a.Config.DSN())
				return err
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		user  string
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token signed with JWT_SECRET (development use)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			token, err := middleware.GenerateJWT(
				domain.UserContext{UserID: user, Email: email},
				middleware.JWTConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, ExpiresIn: ttl},
			)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "User id placed in the sub claim")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
