package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors for task instances.
var (
	ErrInstanceNotFound = errors.New("task instance not found")
	ErrInstanceTerminal = errors.New("task instance is in a terminal state")
)

// InstanceStatus is the lifecycle state of one concrete occurrence.
type InstanceStatus string

const (
	InstancePending    InstanceStatus = "pending"
	InstanceInProgress InstanceStatus = "in_progress"
	InstanceCompleted  InstanceStatus = "completed"
	InstanceVerified   InstanceStatus = "verified"
	InstanceCancelled  InstanceStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceVerified || s == InstanceCancelled
}

// TaskInstance is one dated occurrence of a chore. Identity is immutable
// once the due-date window has passed; only status mutates after due.
type TaskInstance struct {
	ID uuid.UUID

	// ScheduledTaskID is nil for one-off tasks created directly.
	ScheduledTaskID *uuid.UUID

	HouseholdID uuid.UUID
	AssigneeID  uuid.UUID

	Title    string
	Category string
	Points   int

	DueDate           time.Time
	EstimatedDuration time.Duration

	Status      InstanceStatus
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewInstanceFromTask materializes an occurrence carrying over the
// template's fields.
func NewInstanceFromTask(task *ScheduledTask, due time.Time) *TaskInstance {
	now := time.Now().UTC()
	scheduleID := task.ID
	return &TaskInstance{
		ID:                uuid.New(),
		ScheduledTaskID:   &scheduleID,
		HouseholdID:       task.HouseholdID,
		AssigneeID:        task.AssigneeID,
		Title:             task.Title,
		Category:          task.Category,
		Points:            task.Points,
		DueDate:           due,
		EstimatedDuration: task.EstimatedDuration,
		Status:            InstancePending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewOneOffInstance creates an instance with no recurring template.
func NewOneOffInstance(householdID, assigneeID uuid.UUID, title string, due time.Time) (*TaskInstance, error) {
	if title == "" {
		return nil, ErrTaskEmptyTitle
	}
	now := time.Now().UTC()
	return &TaskInstance{
		ID:          uuid.New(),
		HouseholdID: householdID,
		AssigneeID:  assigneeID,
		Title:       title,
		DueDate:     due,
		Status:      InstancePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start moves a pending instance in progress.
func (i *TaskInstance) Start() error {
	if i.Status != InstancePending {
		return i.transitionErr(InstanceInProgress)
	}
	i.Status = InstanceInProgress
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete records the chore as done, pending verification.
func (i *TaskInstance) Complete() error {
	if i.Status != InstancePending && i.Status != InstanceInProgress {
		return i.transitionErr(InstanceCompleted)
	}
	now := time.Now().UTC()
	i.Status = InstanceCompleted
	i.CompletedAt = &now
	i.UpdatedAt = now
	return nil
}

// Verify approves a completed chore.
func (i *TaskInstance) Verify() error {
	if i.Status != InstanceCompleted {
		return i.transitionErr(InstanceVerified)
	}
	i.Status = InstanceVerified
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel aborts a non-terminal instance.
func (i *TaskInstance) Cancel() error {
	if i.Status.IsTerminal() {
		return ErrInstanceTerminal
	}
	i.Status = InstanceCancelled
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// Overdue reports whether the instance is still open past its due date.
func (i *TaskInstance) Overdue(asOf time.Time) bool {
	return (i.Status == InstancePending || i.Status == InstanceInProgress) &&
		asOf.After(i.DueDate)
}

func (i *TaskInstance) transitionErr(to InstanceStatus) error {
	return fmt.Errorf("cannot transition instance %s from %s to %s", i.ID, i.Status, to)
}
