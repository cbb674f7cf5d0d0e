package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskRepository persists recurring task templates.
type TaskRepository interface {
	Create(ctx context.Context, task *ScheduledTask) error
	Update(ctx context.Context, task *ScheduledTask) error
	FindByID(ctx context.Context, id uuid.UUID) (*ScheduledTask, error)

	// FindByIDForUpdate reads the template while locking its row for the
	// enclosing transaction, serializing concurrent generation runs for
	// the same template.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ScheduledTask, error)

	FindActiveByHousehold(ctx context.Context, householdID uuid.UUID) ([]*ScheduledTask, error)
	FindAllActive(ctx context.Context) ([]*ScheduledTask, error)
}

// InstanceRepository persists concrete chore occurrences.
type InstanceRepository interface {
	Create(ctx context.Context, instance *TaskInstance) error
	Update(ctx context.Context, instance *TaskInstance) error
	FindByID(ctx context.Context, id uuid.UUID) (*TaskInstance, error)

	// ExistsNear reports whether the template already has an instance
	// with a due date within the window around due. Backs the
	// generator's idempotency check.
	ExistsNear(ctx context.Context, scheduledTaskID uuid.UUID, due time.Time, window time.Duration) (bool, error)

	// FindByAssigneeInRange returns a member's instances with due dates
	// in [start, end), optionally filtered by status.
	FindByAssigneeInRange(ctx context.Context, assigneeID uuid.UUID, start, end time.Time, statuses []InstanceStatus) ([]*TaskInstance, error)

	// FindByHouseholdOnDate returns all open instances for a household
	// due on the given calendar day.
	FindByHouseholdOnDate(ctx context.Context, householdID uuid.UUID, date time.Time) ([]*TaskInstance, error)

	// FindOpenDueWithin returns open instances with due dates in [from, to).
	FindOpenDueWithin(ctx context.Context, from, to time.Time) ([]*TaskInstance, error)

	// FindOpenOverdue returns open instances whose due date has passed.
	FindOpenOverdue(ctx context.Context, asOf time.Time) ([]*TaskInstance, error)
}
