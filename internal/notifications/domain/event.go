// Package domain contains the notification rules and delivery model.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the chore lifecycle moment a rule can react to.
type EventType string

const (
	EventAssigned  EventType = "assigned"
	EventDueSoon   EventType = "due_soon"
	EventOverdue   EventType = "overdue"
	EventCompleted EventType = "completed"
	EventApproved  EventType = "approved"
	EventMilestone EventType = "milestone"
)

// IsValid checks if the event type is known.
func (t EventType) IsValid() bool {
	switch t {
	case EventAssigned, EventDueSoon, EventOverdue, EventCompleted, EventApproved, EventMilestone:
		return true
	default:
		return false
	}
}

// Priority orders deliveries and decides quiet-hours bypass.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Channel is a delivery medium handled by the messaging collaborator.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Event is one chore lifecycle occurrence the rule engine evaluates.
type Event struct {
	ID          uuid.UUID
	Type        EventType
	HouseholdID uuid.UUID

	// RecipientID is the member the matching rules will notify.
	RecipientID uuid.UUID

	TaskInstanceID *uuid.UUID
	TaskTitle      string
	Category       string
	Priority       Priority

	// DueAt carries the due-date context for rules with negative time
	// offsets ("N minutes before due").
	DueAt *time.Time

	// Streak and Points back the milestone rule conditions.
	Streak int
	Points int

	OccurredAt time.Time
}
