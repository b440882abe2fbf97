package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nonocoop",
	Short: "Cooperative nonogram sessions over a shared fabric",
	Long: "NonoCoop relays the gameplay events of one nonogram between players. " +
		"One player hosts a session for a puzzle, others join it and their moves are resolved by the host.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
