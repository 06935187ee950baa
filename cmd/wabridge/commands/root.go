// Package commands implements the wabridge CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wabridge",
		Short: "wabridge - WhatsApp bridge for an AI assistant",
		Long: `wabridge connects a WhatsApp account to an AI backend. It answers
messages, runs slash commands, transcribes voice notes and sends
scheduled check-ins.

Examples:
  wabridge setup
  wabridge serve
  wabridge console
  wabridge config show
  wabridge health`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newConsoleCmd(),
		newSetupCmd(),
		newConfigCmd(),
		newHealthCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")

	return rootCmd
}
