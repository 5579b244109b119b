package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect RESOURCE",
	Short: "Report the current holder and queue depth of a resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	client, err := dialClient()
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Inspect(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !result.Locked {
		fmt.Fprintf(out, "%s: unlocked, %d waiting\n", result.Resource, result.QueueSize)
		return nil
	}
	fmt.Fprintf(out, "%s: held by lock %s, %d waiting\n", result.Resource, result.LockID, result.QueueSize-1)
	return nil
}
