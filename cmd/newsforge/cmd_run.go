package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"newsforge/internal/app"
	"newsforge/internal/config"
	"newsforge/internal/domain"
	"newsforge/internal/logging"
)

func newRunCmd() *cobra.Command {
	var (
		userID      string
		profilePath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate and deliver one newsletter",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" && profilePath == "" {
				return fmt.Errorf("either --user or --profile is required")
			}

			cfg := config.Load()
			logger := logging.New(cfg.Logging.Level)

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			var state *domain.RunState
			if profilePath != "" {
				profile, err := app.LoadProfileFile(profilePath)
				if err != nil {
					return err
				}
				state = application.RunProfile(cmd.Context(), profile)
			} else {
				state, err = application.RunUser(cmd.Context(), userID)
				if err != nil {
					return err
				}
			}

			printOutcome(cmd, state)
			if state.Outcome == domain.OutcomeAborted {
				return fmt.Errorf("run aborted: %s", state.AbortReason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID to load from the profile store")
	cmd.Flags().StringVar(&profilePath, "profile", "", "path to a YAML profile file")
	return cmd
}

func printOutcome(cmd *cobra.Command, state *domain.RunState) {
	cmd.Printf("run %s: %s\n", state.RunID, state.Outcome)
	if state.Curated != nil {
		cmd.Printf("  articles: %d in %d sections\n",
			state.Curated.TotalArticles(), len(state.Curated.Sections))
	}
	if state.Delivery != nil {
		cmd.Printf("  delivery: %s after %d attempt(s)\n",
			state.Delivery.Status, state.Delivery.Attempts)
	}
	if count := state.ErrorCount(); count > 0 {
		cmd.Printf("  recorded errors: %d\n", count)
		for stage, records := range state.StageErrors {
			for _, rec := range records {
				cmd.Printf("    [%s] %s: %s\n", stage, rec.Kind, rec.Message)
			}
		}
	}
}
