package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for notification rules.
var (
	ErrRuleNotFound   = errors.New("notification rule not found")
	ErrRuleEmptyName  = errors.New("rule name is required")
	ErrRuleNoChannels = errors.New("at least one channel is required")
	ErrInvalidEvent   = errors.New("invalid trigger event type")
)

// Trigger binds a rule to an event type, optionally shifted in time.
// A negative OffsetMinutes means "before the event's due date".
type Trigger struct {
	Event         EventType `json:"event"`
	OffsetMinutes int       `json:"offset_minutes"`
}

// Conditions restrict which events a rule reacts to. Empty slices and
// zero minimums match everything.
type Conditions struct {
	Priorities []Priority  `json:"priorities,omitempty"`
	Categories []string    `json:"categories,omitempty"`
	Recipients []uuid.UUID `json:"recipients,omitempty"`
	MinStreak  int         `json:"min_streak,omitempty"`
	MinPoints  int         `json:"min_points,omitempty"`
}

// EscalationPolicy configures retry and parent alerting after failures.
type EscalationPolicy struct {
	Enabled          bool `json:"enabled"`
	DelayMinutes     int  `json:"delay_minutes"`
	EscalateToAdmins bool `json:"escalate_to_admins"`
	MaxAttempts      int  `json:"max_attempts"`
}

// Actions describe what a matching rule does.
type Actions struct {
	// Channels is the preference-ordered delivery list. The dispatcher
	// hands channels[0] to the messaging collaborator, which owns any
	// further fallback.
	Channels   []Channel        `json:"channels"`
	Priority   Priority         `json:"priority"`
	Escalation EscalationPolicy `json:"escalation"`
}

// Constraints bound when and how often a rule may deliver.
type Constraints struct {
	RespectQuietHours bool           `json:"respect_quiet_hours"`
	MaxPerHour        int            `json:"max_per_hour,omitempty"`
	CooldownMinutes   int            `json:"cooldown_minutes,omitempty"`
	AllowedDays       []time.Weekday `json:"allowed_days,omitempty"`
}

// Rule decides whether and when a lifecycle event turns into a delivery.
// Rules are read-only at dispatch time.
type Rule struct {
	ID          uuid.UUID
	HouseholdID uuid.UUID
	Name        string
	Enabled     bool

	Trigger     Trigger
	Conditions  Conditions
	Actions     Actions
	Constraints Constraints

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRule creates an enabled notification rule.
func NewRule(householdID uuid.UUID, name string, trigger Trigger, actions Actions) (*Rule, error) {
	if name == "" {
		return nil, ErrRuleEmptyName
	}
	if !trigger.Event.IsValid() {
		return nil, ErrInvalidEvent
	}
	if len(actions.Channels) == 0 {
		return nil, ErrRuleNoChannels
	}

	now := time.Now().UTC()
	return &Rule{
		ID:          uuid.New(),
		HouseholdID: householdID,
		Name:        name,
		Enabled:     true,
		Trigger:     trigger,
		Actions:     actions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Enable enables the rule.
func (r *Rule) Enable() {
	r.Enabled = true
	r.UpdatedAt = time.Now().UTC()
}

// Disable disables the rule.
func (r *Rule) Disable() {
	r.Enabled = false
	r.UpdatedAt = time.Now().UTC()
}

// SetConditions replaces the rule's conditions.
func (r *Rule) SetConditions(c Conditions) {
	r.Conditions = c
	r.UpdatedAt = time.Now().UTC()
}

// SetConstraints replaces the rule's scheduling constraints.
func (r *Rule) SetConstraints(c Constraints) {
	r.Constraints = c
	r.UpdatedAt = time.Now().UTC()
}

// MaxAttempts is the delivery budget for schedules created by this rule.
func (r *Rule) MaxAttempts(fallback int) int {
	if r.Actions.Escalation.MaxAttempts > 0 {
		return r.Actions.Escalation.MaxAttempts
	}
	if fallback > 0 {
		return fallback
	}
	return 1
}

// RetryDelay is how far a failed attempt pushes the schedule out.
func (r *Rule) RetryDelay() time.Duration {
	if r.Actions.Escalation.DelayMinutes > 0 {
		return time.Duration(r.Actions.Escalation.DelayMinutes) * time.Minute
	}
	return 15 * time.Minute
}

// Cooldown returns the per-recipient refire guard, zero when unset.
func (r *Rule) Cooldown() time.Duration {
	return time.Duration(r.Constraints.CooldownMinutes) * time.Minute
}

// Matches reports whether the rule applies to the event: the trigger
// event type must match and every configured condition must hold.
func (r *Rule) Matches(ev Event) bool {
	if !r.Enabled || r.Trigger.Event != ev.Type {
		return false
	}

	if len(r.Conditions.Priorities) > 0 && !containsPriority(r.Conditions.Priorities, ev.Priority) {
		return false
	}
	if len(r.Conditions.Categories) > 0 && !containsString(r.Conditions.Categories, ev.Category) {
		return false
	}
	if len(r.Conditions.Recipients) > 0 && !containsID(r.Conditions.Recipients, ev.RecipientID) {
		return false
	}
	if r.Conditions.MinStreak > 0 && ev.Streak < r.Conditions.MinStreak {
		return false
	}
	if r.Conditions.MinPoints > 0 && ev.Points < r.Conditions.MinPoints {
		return false
	}

	return true
}

func containsPriority(list []Priority, p Priority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsID(list []uuid.UUID, id uuid.UUID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
