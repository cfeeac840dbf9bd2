// Package commands implements the CLI commands for the bot.
package commands

import (
	"github.com/spf13/cobra"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "masker",
	Short: "MaskerBot - pseudonymous identity chat bot",
	Long: `MaskerBot gives every guild member a stable random pseudonym and relays
their messages through it, so members can talk without exposing who they are.
It manages the role tiers behind that anonymity, brokers rate-limited requests
to the admins, and polices messages that leak outside the private category.

Use "masker [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command; called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
