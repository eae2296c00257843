package main

import (
	"github.com/spf13/cobra"

	"newsforge/internal/app"
	"newsforge/internal/config"
	"newsforge/internal/logging"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled newsletters for configured users",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Logging.Level)

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			logger.Info("serve mode started",
				"users", len(cfg.Serve.Users),
				"interval", cfg.Serve.TickInterval())
			return application.Serve(cmd.Context())
		},
	}
}
