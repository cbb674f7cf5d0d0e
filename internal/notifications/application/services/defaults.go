package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/choreminder/choreminder/internal/notifications/domain"
)

// BootstrapDefaultRules seeds a household with the starter rule set:
// a reminder an hour before chores are due, an escalating overdue alert,
// and a completion acknowledgement. Households that already have rules
// are left alone.
func BootstrapDefaultRules(ctx context.Context, rules domain.RuleRepository, householdID uuid.UUID) ([]*domain.Rule, error) {
	existing, err := rules.FindByHousehold(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}

	defaults, err := defaultRules(householdID)
	if err != nil {
		return nil, err
	}
	for _, rule := range defaults {
		if err := rules.Create(ctx, rule); err != nil {
			return nil, fmt.Errorf("create default rule %q: %w", rule.Name, err)
		}
	}
	return defaults, nil
}

func defaultRules(householdID uuid.UUID) ([]*domain.Rule, error) {
	reminder, err := domain.NewRule(householdID, "Due soon reminder",
		domain.Trigger{Event: domain.EventDueSoon, OffsetMinutes: -60},
		domain.Actions{
			Channels: []domain.Channel{domain.ChannelWhatsApp, domain.ChannelEmail},
			Priority: domain.PriorityNormal,
		},
	)
	if err != nil {
		return nil, err
	}
	reminder.SetConstraints(domain.Constraints{
		RespectQuietHours: true,
		CooldownMinutes:   30,
	})

	overdue, err := domain.NewRule(householdID, "Overdue alert",
		domain.Trigger{Event: domain.EventOverdue},
		domain.Actions{
			Channels: []domain.Channel{domain.ChannelWhatsApp, domain.ChannelSMS},
			Priority: domain.PriorityHigh,
			Escalation: domain.EscalationPolicy{
				Enabled:          true,
				DelayMinutes:     30,
				EscalateToAdmins: true,
				MaxAttempts:      3,
			},
		},
	)
	if err != nil {
		return nil, err
	}
	overdue.SetConstraints(domain.Constraints{
		RespectQuietHours: true,
		CooldownMinutes:   120,
	})

	congrats, err := domain.NewRule(householdID, "Completion shout-out",
		domain.Trigger{Event: domain.EventCompleted},
		domain.Actions{
			Channels: []domain.Channel{domain.ChannelWhatsApp},
			Priority: domain.PriorityLow,
		},
	)
	if err != nil {
		return nil, err
	}
	congrats.SetConstraints(domain.Constraints{
		RespectQuietHours: true,
		MaxPerHour:        3,
	})

	return []*domain.Rule{reminder, overdue, congrats}, nil
}
