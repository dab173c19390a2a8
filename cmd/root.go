package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "devsys",
	Short: "DevSys account and access-control API server",
	Long: `DevSys account and access-control API server.

Provides user registration, email activation, cookie sessions and
feature-based authorization over a Postgres store.`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
