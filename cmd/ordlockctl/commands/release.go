package commands

import (
	"github.com/spf13/cobra"
)

var releaseCmd = &cobra.Command{
	Use:   "release LOCK_ID",
	Short: "Release a held lock by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelease,
}

func runRelease(cmd *cobra.Command, args []string) error {
	client, err := dialClient()
	if err != nil {
		return err
	}
	defer client.Close()

	return client.ReleaseLock(args[0])
}
