package services

import (
	householdDomain "github.com/choreminder/choreminder/internal/household/domain"
	"github.com/choreminder/choreminder/internal/notifications/domain"
)

// Composer renders the message type and context for a delivery. Keeping
// rendering behind an interface lets the dispatcher's state machine be
// tested without any message template.
type Composer interface {
	Compose(schedule *domain.Schedule, rule *domain.Rule) domain.SendRequest
	ComposeEscalation(schedule *domain.Schedule, rule *domain.Rule, admin *householdDomain.Member) domain.SendRequest
}

// TemplateComposer maps lifecycle events to message templates by name.
type TemplateComposer struct{}

// NewTemplateComposer creates the default composer.
func NewTemplateComposer() *TemplateComposer {
	return &TemplateComposer{}
}

// Compose builds the send request for a regular delivery.
func (c *TemplateComposer) Compose(schedule *domain.Schedule, rule *domain.Rule) domain.SendRequest {
	return domain.SendRequest{
		RecipientID:      schedule.RecipientID,
		MessageType:      messageTypeFor(metadataString(schedule.Metadata, "event_type")),
		Priority:         rule.Actions.Priority,
		PreferredChannel: rule.Actions.Channels[0],
		BypassQuietHours: rule.Actions.Priority == domain.PriorityUrgent,
		Context:          schedule.Metadata,
	}
}

// ComposeEscalation builds the high-priority admin alert referencing the
// original failed delivery.
func (c *TemplateComposer) ComposeEscalation(schedule *domain.Schedule, rule *domain.Rule, admin *householdDomain.Member) domain.SendRequest {
	ctx := map[string]any{
		"original_schedule_id": schedule.ID.String(),
		"original_recipient":   schedule.RecipientID.String(),
		"task_title":           metadataString(schedule.Metadata, "task_title"),
		"event_type":           metadataString(schedule.Metadata, "event_type"),
		"attempts":             schedule.Attempts,
		"last_error":           schedule.LastError,
	}
	return domain.SendRequest{
		RecipientID:      admin.ID,
		MessageType:      "delivery_escalation",
		Priority:         domain.PriorityUrgent,
		PreferredChannel: rule.Actions.Channels[0],
		BypassQuietHours: true,
		Context:          ctx,
	}
}

func messageTypeFor(eventType string) string {
	switch domain.EventType(eventType) {
	case domain.EventAssigned:
		return "chore_assigned"
	case domain.EventDueSoon:
		return "chore_reminder"
	case domain.EventOverdue:
		return "chore_overdue"
	case domain.EventCompleted:
		return "chore_completed"
	case domain.EventApproved:
		return "chore_approved"
	case domain.EventMilestone:
		return "milestone_reached"
	default:
		return "chore_update"
	}
}
