// Package commands implements the ordlockctl CLI: a root.go building the
// root *cobra.Command, with leaf files registering subcommands via init().
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time via -ldflags.
	Version = "dev"

	cfgFile string
	addr    string
)

var rootCmd = &cobra.Command{
	Use:           "ordlockctl",
	Short:         "ordlockctl inspects and drives an ordlockd server from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file name (looked up in . and data/config)")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "lock server address, overrides config")

	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)
}
