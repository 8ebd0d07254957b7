package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/99minutos/identity-system/internal/pkg/config"
	"github.com/99minutos/identity-system/pkg/logger"
)

// @title                       Identity API
// @version                     1.0
// @description                 User accounts, token lifecycle and external identity login.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFiles []string
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "identity",
		Short:         "User accounts, tokens and external identity login",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range envFiles {
				// Missing files are fine; the environment may be set already.
				if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("load %s: %w", f, err)
				}
			}

			loaded, err := config.LoadFrom(cmd.Context(), envconfig.OsLookuper())
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			*cfg = *loaded

			logger.Init(logger.Options{
				Level:   cfg.LogLevel,
				Pretty:  !cfg.IsProduction(),
				Service: "identity",
			})
			return nil
		},
	}

	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")

	root.AddCommand(
		newServeCommand(cfg),
		newSeedCommand(cfg),
		newBlockCommand(cfg, true),
		newBlockCommand(cfg, false),
	)
	return root
}
