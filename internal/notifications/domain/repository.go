package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RuleRepository persists notification rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
	FindByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	FindByHousehold(ctx context.Context, householdID uuid.UUID) ([]*Rule, error)

	// FindEnabledByEvent returns the household's enabled rules whose
	// trigger matches the event type.
	FindEnabledByEvent(ctx context.Context, householdID uuid.UUID, event EventType) ([]*Rule, error)
}

// ScheduleRepository persists instantiated deliveries.
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *Schedule) error
	FindByID(ctx context.Context, id uuid.UUID) (*Schedule, error)

	// FindDue returns pending schedules with scheduledAt <= now, oldest
	// first, capped at limit. Cancelled entries are never returned.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Schedule, error)

	// Claim atomically opens the next delivery attempt: it bumps the
	// stored attempt counter from expectedAttempts while the row is
	// still pending. A false return means another pass already claimed
	// or finished the schedule.
	Claim(ctx context.Context, id uuid.UUID, expectedAttempts int, now time.Time) (bool, error)

	// Update persists schedule mutations conditioned on the stored row
	// still being pending, so a concurrent pass cannot double-send; it
	// returns false when the row was already terminal.
	Update(ctx context.Context, schedule *Schedule) (bool, error)

	// ListFailed returns failed schedules for the household audit surface.
	ListFailed(ctx context.Context, householdID uuid.UUID, limit int) ([]*Schedule, error)

	// ListEscalated returns schedules whose escalation fan-out fired.
	ListEscalated(ctx context.Context, householdID uuid.UUID, limit int) ([]*Schedule, error)
}
