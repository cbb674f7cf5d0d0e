// Package cli implements the choreminder command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/choreminder/choreminder/internal/app"
	"github.com/choreminder/choreminder/pkg/config"
	"github.com/choreminder/choreminder/pkg/observability"
)

var container *app.Container

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "choreminder",
	Short: "ChoreMinder - household chore scheduling and notifications",
	Long: `ChoreMinder turns recurring chore templates into dated instances,
spots overloaded days, and drives multi-channel reminders with
escalation when chores go unanswered.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := observability.LoggerFromEnv()

		c, err := app.NewContainer(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		container = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if container != nil {
			container.Close()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
