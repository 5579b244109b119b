// Package commands implements the ordlockd CLI: a root.go building the root
// *cobra.Command, with leaf files registering subcommands via init().
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time via -ldflags.
	Version = "dev"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:           "ordlockd",
	Short:         "ordlockd is the single-threaded ordered distributed lock server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file name (looked up in . and data/config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
