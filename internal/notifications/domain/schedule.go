package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for notification schedules.
var (
	ErrScheduleNotFound = errors.New("notification schedule not found")
	ErrScheduleTerminal = errors.New("notification schedule is terminal")
)

// ScheduleStatus is the delivery state of a pending notification.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleSent      ScheduleStatus = "sent"
	ScheduleFailed    ScheduleStatus = "failed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// IsTerminal reports whether the schedule can no longer be dispatched.
func (s ScheduleStatus) IsTerminal() bool {
	return s != SchedulePending
}

// Schedule is one instantiated, pending delivery created when a rule
// fires. The dispatcher mutates it on each attempt; it is terminal once
// sent, failed, or cancelled.
type Schedule struct {
	ID          uuid.UUID
	RuleID      uuid.UUID
	HouseholdID uuid.UUID
	RecipientID uuid.UUID

	// TaskInstanceID links back to the chore, nil for milestone events.
	TaskInstanceID *uuid.UUID

	ScheduledAt time.Time
	Attempts    int
	MaxAttempts int
	Status      ScheduleStatus

	// EscalationLevel counts escalation fan-outs; Escalated guards the
	// fan-out so it fires at most once across sweeps.
	EscalationLevel int
	Escalated       bool

	// Metadata captures the triggering event for message rendering.
	Metadata map[string]any

	LastError string
	SentAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSchedule instantiates a pending delivery for a rule/recipient pair.
func NewSchedule(rule *Rule, recipientID uuid.UUID, scheduledAt time.Time, maxAttempts int, metadata map[string]any) *Schedule {
	now := time.Now().UTC()
	return &Schedule{
		ID:          uuid.New(),
		RuleID:      rule.ID,
		HouseholdID: rule.HouseholdID,
		RecipientID: recipientID,
		ScheduledAt: scheduledAt,
		MaxAttempts: maxAttempts,
		Status:      SchedulePending,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Due reports whether the dispatcher should claim the schedule.
func (s *Schedule) Due(now time.Time) bool {
	return s.Status == SchedulePending && !s.ScheduledAt.After(now)
}

// MarkSent records a successful delivery.
func (s *Schedule) MarkSent(now time.Time) error {
	if s.Status != SchedulePending {
		return ErrScheduleTerminal
	}
	s.Status = ScheduleSent
	s.SentAt = &now
	s.UpdatedAt = now
	return nil
}

// BeginAttempt consumes one attempt ahead of the delivery call. The
// dispatcher claims the stored row with the same increment before any
// message leaves the process, so only one pass can open a given attempt.
func (s *Schedule) BeginAttempt(now time.Time) error {
	if s.Status != SchedulePending {
		return ErrScheduleTerminal
	}
	s.Attempts++
	s.UpdatedAt = now
	return nil
}

// RecordFailure closes the attempt opened by BeginAttempt. While attempts
// remain the schedule stays pending, pushed out by delay; once the budget
// is exhausted it turns failed. Exhausted reports whether this failure
// was the last.
func (s *Schedule) RecordFailure(now time.Time, reason string, delay time.Duration) (exhausted bool, err error) {
	if s.Status != SchedulePending {
		return false, ErrScheduleTerminal
	}

	s.LastError = reason
	s.UpdatedAt = now

	if s.Attempts >= s.MaxAttempts {
		s.Status = ScheduleFailed
		return true, nil
	}

	s.ScheduledAt = now.Add(delay)
	return false, nil
}

// Defer pushes the send time out without consuming an attempt, used for
// live cooldown and rate-limit rechecks.
func (s *Schedule) Defer(until time.Time) error {
	if s.Status != SchedulePending {
		return ErrScheduleTerminal
	}
	s.ScheduledAt = until
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel withdraws the delivery before a sweep claims it.
func (s *Schedule) Cancel() error {
	if s.Status != SchedulePending {
		return ErrScheduleTerminal
	}
	s.Status = ScheduleCancelled
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkEscalated records the one-shot escalation fan-out.
func (s *Schedule) MarkEscalated() {
	s.Escalated = true
	s.EscalationLevel++
	s.UpdatedAt = time.Now().UTC()
}
