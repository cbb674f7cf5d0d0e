package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Dispatch all due notifications once",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := container.Dispatcher.RunSweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("claimed=%d sent=%d retried=%d failed=%d escalated=%d deferred=%d\n",
			stats.Claimed, stats.Sent, stats.Retried, stats.Failed, stats.Escalated, stats.Deferred)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
