package domain

import (
	"github.com/google/uuid"

	sharedDomain "github.com/choreminder/choreminder/internal/shared/domain"
)

// Routing keys for notification lifecycle events.
const (
	RoutingScheduleFailed = "notification.schedule.failed"
	RoutingEscalated      = "notification.escalated"
)

// DeliveryFailed fires when a delivery exhausts its attempt budget.
type DeliveryFailed struct {
	sharedDomain.BaseEvent

	ScheduleID  uuid.UUID `json:"schedule_id"`
	RuleID      uuid.UUID `json:"rule_id"`
	HouseholdID uuid.UUID `json:"household_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
}

// NewDeliveryFailed creates the terminal-failure event for a schedule.
func NewDeliveryFailed(s *Schedule) DeliveryFailed {
	return DeliveryFailed{
		BaseEvent:   sharedDomain.NewBaseEvent(s.ID, "notification_schedule", RoutingScheduleFailed),
		ScheduleID:  s.ID,
		RuleID:      s.RuleID,
		HouseholdID: s.HouseholdID,
		RecipientID: s.RecipientID,
		Attempts:    s.Attempts,
		LastError:   s.LastError,
	}
}

// Escalated fires once when a failed schedule fans out to the admins.
type Escalated struct {
	sharedDomain.BaseEvent

	ScheduleID  uuid.UUID   `json:"schedule_id"`
	HouseholdID uuid.UUID   `json:"household_id"`
	RecipientID uuid.UUID   `json:"recipient_id"`
	NotifiedTo  []uuid.UUID `json:"notified_to"`
}

// NewEscalated creates the escalation event for a schedule.
func NewEscalated(s *Schedule, notifiedTo []uuid.UUID) Escalated {
	return Escalated{
		BaseEvent:   sharedDomain.NewBaseEvent(s.ID, "notification_schedule", RoutingEscalated),
		ScheduleID:  s.ID,
		HouseholdID: s.HouseholdID,
		RecipientID: s.RecipientID,
		NotifiedTo:  notifiedTo,
	}
}
