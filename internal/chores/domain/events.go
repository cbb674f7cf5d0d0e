package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/choreminder/choreminder/internal/shared/domain"
)

// Routing keys for chore lifecycle events.
const (
	RoutingInstanceGenerated = "chore.instance.generated"
	RoutingInstanceDueSoon   = "chore.instance.due_soon"
	RoutingInstanceOverdue   = "chore.instance.overdue"
	RoutingInstanceCompleted = "chore.instance.completed"
	RoutingInstanceVerified  = "chore.instance.verified"
	RoutingInstanceMilestone = "chore.instance.milestone"
)

// InstanceEvent is the payload shared by all chore lifecycle events.
type InstanceEvent struct {
	sharedDomain.BaseEvent

	InstanceID      uuid.UUID  `json:"instance_id"`
	ScheduledTaskID *uuid.UUID `json:"scheduled_task_id,omitempty"`
	HouseholdID     uuid.UUID  `json:"household_id"`
	AssigneeID      uuid.UUID  `json:"assignee_id"`
	Title           string     `json:"title"`
	Category        string     `json:"category"`
	Points          int        `json:"points"`
	DueDate         time.Time  `json:"due_date"`

	// Streak is the template's completion streak at the time of the
	// event, carried so milestone rules can match on it.
	Streak int `json:"streak"`
}

func newInstanceEvent(routingKey string, instance *TaskInstance) InstanceEvent {
	return InstanceEvent{
		BaseEvent:       sharedDomain.NewBaseEvent(instance.ID, "task_instance", routingKey),
		InstanceID:      instance.ID,
		ScheduledTaskID: instance.ScheduledTaskID,
		HouseholdID:     instance.HouseholdID,
		AssigneeID:      instance.AssigneeID,
		Title:           instance.Title,
		Category:        instance.Category,
		Points:          instance.Points,
		DueDate:         instance.DueDate,
	}
}

// NewInstanceGenerated fires when the generator materializes an occurrence.
func NewInstanceGenerated(instance *TaskInstance) InstanceEvent {
	return newInstanceEvent(RoutingInstanceGenerated, instance)
}

// NewInstanceDueSoon fires when an open instance approaches its due date.
func NewInstanceDueSoon(instance *TaskInstance) InstanceEvent {
	return newInstanceEvent(RoutingInstanceDueSoon, instance)
}

// NewInstanceOverdue fires when an open instance passes its due date.
func NewInstanceOverdue(instance *TaskInstance) InstanceEvent {
	return newInstanceEvent(RoutingInstanceOverdue, instance)
}

// NewInstanceCompleted fires when a chore is marked done. streak is the
// template's completion streak including this completion.
func NewInstanceCompleted(instance *TaskInstance, streak int) InstanceEvent {
	event := newInstanceEvent(RoutingInstanceCompleted, instance)
	event.Streak = streak
	return event
}

// NewInstanceVerified fires when a completed chore is approved.
func NewInstanceVerified(instance *TaskInstance, streak int) InstanceEvent {
	event := newInstanceEvent(RoutingInstanceVerified, instance)
	event.Streak = streak
	return event
}

// NewInstanceMilestone fires when a completion pushes the template's
// streak across one of StreakMilestones.
func NewInstanceMilestone(instance *TaskInstance, streak int) InstanceEvent {
	event := newInstanceEvent(RoutingInstanceMilestone, instance)
	event.Streak = streak
	return event
}
