package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nfrund/storge/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "storge",
	Short: "Storge chat client",
	Long: `Storge is a terminal client for the Storge chat backend.

Available commands:
  login    Sign in with a username and PIN
  rooms    List or create rooms
  chat     Open a room and chat interactively

Use "storge [command] --help" for more information about a specific command.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.New()
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
