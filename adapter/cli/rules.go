package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/choreminder/choreminder/internal/notifications/application/services"
)

var rulesCmd = &cobra.Command{
	Use:   "rules <household-id>",
	Short: "List a household's notification rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		householdID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid household id: %w", err)
		}

		rules, err := container.RuleRepo.FindByHousehold(cmd.Context(), householdID)
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			fmt.Println("no rules configured (run 'rules-bootstrap' to install defaults)")
			return nil
		}
		for _, r := range rules {
			state := "enabled"
			if !r.Enabled {
				state = "disabled"
			}
			fmt.Printf("%s  %-30s on=%s channels=%v priority=%s [%s]\n",
				r.ID, r.Name, r.Trigger.Event, r.Actions.Channels, r.Actions.Priority, state)
		}
		return nil
	},
}

var rulesBootstrapCmd = &cobra.Command{
	Use:   "rules-bootstrap <household-id>",
	Short: "Install the default notification rules for a household",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		householdID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid household id: %w", err)
		}

		created, err := services.BootstrapDefaultRules(cmd.Context(), container.RuleRepo, householdID)
		if err != nil {
			return err
		}
		if len(created) == 0 {
			fmt.Println("household already has rules, nothing installed")
			return nil
		}
		for _, r := range created {
			fmt.Printf("installed %q (%s)\n", r.Name, r.Trigger.Event)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(rulesBootstrapCmd)
}
