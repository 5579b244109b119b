package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	lockTTL            time.Duration
	lockLockingTimeout time.Duration
)

var lockCmd = &cobra.Command{
	Use:   "lock RESOURCE [RESOURCE...]",
	Short: "Acquire one or more resources and print the lock id",
	Long: `Acquire a lock on the given resources and print the lock id on success.

The lock belongs to this command's connection: when ordlockctl exits and the
connection closes, the server releases the lock, so it does not stay held
after the command returns.

Examples:
  ordlockctl lock widget-1
  ordlockctl lock widget-1 widget-2 --ttl 30s --locking-timeout 5s`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLock,
}

func init() {
	lockCmd.Flags().DurationVar(&lockTTL, "ttl", 30*time.Second, "lock time-to-live")
	lockCmd.Flags().DurationVar(&lockLockingTimeout, "locking-timeout", 10*time.Second, "max time to wait in queue before giving up")
}

func runLock(cmd *cobra.Command, args []string) error {
	client, err := dialClient()
	if err != nil {
		return err
	}
	defer client.Close()

	lockID, err := client.Acquire(args, lockOptionsFromFlags())
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), lockID)
	return nil
}
