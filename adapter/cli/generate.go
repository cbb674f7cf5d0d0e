package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	generateTaskID  string
	generateHorizon int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Materialize upcoming chore instances from recurring templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		horizon := generateHorizon
		if horizon < 1 {
			horizon = container.Config.GenerateHorizon
		}

		if generateTaskID != "" {
			taskID, err := uuid.Parse(generateTaskID)
			if err != nil {
				return fmt.Errorf("invalid task id: %w", err)
			}
			created, err := container.Generator.GenerateUpcoming(cmd.Context(), taskID, horizon)
			if err != nil {
				return err
			}
			fmt.Printf("created %d instance(s)\n", created)
			return nil
		}

		created, err := container.Generator.GenerateAll(cmd.Context(), horizon)
		if err != nil {
			return err
		}
		fmt.Printf("created %d instance(s) across all active templates\n", created)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateTaskID, "task", "", "generate only for this template ID")
	generateCmd.Flags().IntVar(&generateHorizon, "horizon", 0, "horizon in days (default from config)")
	rootCmd.AddCommand(generateCmd)
}
