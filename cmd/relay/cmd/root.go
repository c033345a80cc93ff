package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Live chat message relay",
	Long: `relay fans out live chat events to WebSocket clients.

Available commands:
  serve      Run the relay server
  tail       Connect to a relay and print messages as they arrive
  version    Print the version

Use "relay [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
