package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	conflictsStart string
	conflictsEnd   string
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <member-id>",
	Short: "Flag overloaded days for a household member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		memberID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid member id: %w", err)
		}

		start := time.Now().UTC()
		if conflictsStart != "" {
			start, err = time.Parse("2006-01-02", conflictsStart)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
		}
		end := start.AddDate(0, 0, 7)
		if conflictsEnd != "" {
			end, err = time.Parse("2006-01-02", conflictsEnd)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
		}
		if !end.After(start) {
			return fmt.Errorf("--end must be after --start")
		}

		conflicts, err := container.ConflictDetector.FindConflicts(cmd.Context(), memberID, start, end)
		if err != nil {
			return err
		}
		if len(conflicts) == 0 {
			fmt.Println("no overloaded days found")
			return nil
		}
		for _, c := range conflicts {
			fmt.Printf("%s: %d task(s), %s total — %s\n",
				c.Date.Format("2006-01-02"), c.Count, c.TotalDuration, c.Recommendation)
		}
		return nil
	},
}

var optimizeDate string

var optimizeCmd = &cobra.Command{
	Use:   "optimize <household-id>",
	Short: "Suggest reassignments to balance a day's workload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		householdID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid household id: %w", err)
		}

		date := time.Now().UTC()
		if optimizeDate != "" {
			date, err = time.Parse("2006-01-02", optimizeDate)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
		}

		suggestions, err := container.ConflictDetector.OptimizeHousehold(cmd.Context(), householdID, date)
		if err != nil {
			return err
		}
		if len(suggestions) == 0 {
			fmt.Println("workload already balanced")
			return nil
		}
		for _, s := range suggestions {
			fmt.Printf("move %s from %s to %s: %s\n", s.InstanceID, s.FromMember, s.ToMember, s.Reason)
		}
		return nil
	},
}

func init() {
	conflictsCmd.Flags().StringVar(&conflictsStart, "start", "", "range start (YYYY-MM-DD, default today)")
	conflictsCmd.Flags().StringVar(&conflictsEnd, "end", "", "range end (YYYY-MM-DD, default start+7d)")
	optimizeCmd.Flags().StringVar(&optimizeDate, "date", "", "day to optimize (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(optimizeCmd)
}
