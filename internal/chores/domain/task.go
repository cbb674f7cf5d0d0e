package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors for scheduled tasks.
var (
	ErrTaskNotFound   = errors.New("scheduled task not found")
	ErrTaskEmptyTitle = errors.New("task title cannot be empty")
	ErrTaskInactive   = errors.New("scheduled task is inactive")
)

// ScheduledTask is the recurring template concrete chore instances are
// generated from.
type ScheduledTask struct {
	ID          uuid.UUID
	HouseholdID uuid.UUID
	AssigneeID  uuid.UUID

	Title       string
	Description string
	Category    string
	Points      int

	// EstimatedDuration is the expected effort per occurrence.
	EstimatedDuration time.Duration

	Pattern RecurrencePattern
	NextDue time.Time

	// LastGenerated is the high-water mark for idempotent instance
	// generation. Nil until the first generation run.
	LastGenerated *time.Time

	// Occurrences counts generated instances, checked against the
	// pattern's MaxOccurrences budget.
	Occurrences int

	// Streak counts consecutive completed occurrences; it resets when
	// an occurrence goes overdue. BestStreak is the all-time high.
	Streak     int
	BestStreak int

	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewScheduledTask creates a recurring task template.
func NewScheduledTask(
	householdID, assigneeID uuid.UUID,
	title string,
	pattern RecurrencePattern,
	firstDue time.Time,
) (*ScheduledTask, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTaskEmptyTitle
	}
	if err := pattern.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &ScheduledTask{
		ID:          uuid.New(),
		HouseholdID: householdID,
		AssigneeID:  assigneeID,
		Title:       title,
		Pattern:     pattern,
		NextDue:     firstDue,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ReplacePattern swaps the recurrence rule. The generation high-water
// mark resets so future instances follow the new rule; already generated
// instances are untouched.
func (t *ScheduledTask) ReplacePattern(pattern RecurrencePattern) error {
	if err := pattern.Validate(); err != nil {
		return err
	}
	t.Pattern = pattern
	t.LastGenerated = nil
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Reassign moves the template to another household member.
func (t *ScheduledTask) Reassign(assigneeID uuid.UUID) {
	t.AssigneeID = assigneeID
	t.UpdatedAt = time.Now().UTC()
}

// Deactivate stops generation without deleting the template. Templates
// with existing instances are deactivated, never hard-deleted.
func (t *ScheduledTask) Deactivate() {
	t.Active = false
	t.UpdatedAt = time.Now().UTC()
}

// RecordGeneration advances the high-water mark after a generation batch.
// highWater must never pass a due date whose instance failed to persist;
// the generator runs the batch and this update in one transaction.
func (t *ScheduledTask) RecordGeneration(highWater time.Time, created int) {
	t.LastGenerated = &highWater
	t.NextDue = highWater
	t.Occurrences += created
	t.UpdatedAt = time.Now().UTC()
}

// StreakMilestones are the streak lengths that fire a milestone event.
var StreakMilestones = []int{7, 30, 100}

// RecordCompletion extends the completion streak by one and returns the
// milestone the new streak reached, or zero.
func (t *ScheduledTask) RecordCompletion() int {
	t.Streak++
	if t.Streak > t.BestStreak {
		t.BestStreak = t.Streak
	}
	t.UpdatedAt = time.Now().UTC()

	for _, m := range StreakMilestones {
		if t.Streak == m {
			return m
		}
	}
	return 0
}

// BreakStreak resets the completion streak after a missed occurrence.
func (t *ScheduledTask) BreakStreak() {
	if t.Streak == 0 {
		return
	}
	t.Streak = 0
	t.UpdatedAt = time.Now().UTC()
}

// GenerationCursor returns the date generation resumes from.
func (t *ScheduledTask) GenerationCursor(now time.Time) time.Time {
	if t.LastGenerated != nil {
		return *t.LastGenerated
	}
	return now
}
