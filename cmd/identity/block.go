package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/99minutos/identity-system/internal/pkg/config"
	"github.com/99minutos/identity-system/pkg/logger"
)

// newBlockCommand builds "block" or "unblock". Blocking also revokes every
// refresh token of the user.
func newBlockCommand(cfg *config.Config, blocked bool) *cobra.Command {
	use, short := "unblock", "Allow a blocked user to log in again"
	if blocked {
		use, short = "block", "Prevent a user from logging in"
	}

	return &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.users.SetBlocked(cmd.Context(), args[0], blocked); err != nil {
				return fmt.Errorf("%s %s: %w", use, args[0], err)
			}
			log := logger.Get()
			log.Info().Str("user", args[0]).Bool("blocked", blocked).Msg("user updated")
			return nil
		},
	}
}
