package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the LeadPilot admin CLI. Subcommands (auth, bootstrap, segment) are attached here.
var rootCmd = &cobra.Command{
	Use:           "leadpilot",
	Short:         "LeadPilot admin CLI",
	Long:          "Administrative utilities for LeadPilot (dev tokens, schema bootstrap, segment maintenance).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
