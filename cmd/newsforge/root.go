package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "newsforge",
		Short: "Personalized newsletter generation pipeline",
		Long: `newsforge collects content from configured sources, curates it with
an AI scoring pass, renders a personalized email, and delivers it with
bounded retries.`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	return root
}
