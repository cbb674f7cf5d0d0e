// Package services contains the notification application services.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	householdDomain "github.com/choreminder/choreminder/internal/household/domain"
	"github.com/choreminder/choreminder/internal/notifications/domain"
)

// RuleEngine turns lifecycle events into pending notification schedules,
// honoring quiet hours, hourly rate limits, and cooldowns at scheduling
// time. The dispatcher re-checks the live constraints at send time.
type RuleEngine struct {
	rules     domain.RuleRepository
	schedules domain.ScheduleRepository
	members   householdDomain.MemberRepository
	throttle  domain.ThrottleStore

	defaultMaxAttempts int
	now                func() time.Time
	logger             *slog.Logger
}

// NewRuleEngine creates a new rule engine.
func NewRuleEngine(
	rules domain.RuleRepository,
	schedules domain.ScheduleRepository,
	members householdDomain.MemberRepository,
	throttle domain.ThrottleStore,
	defaultMaxAttempts int,
	logger *slog.Logger,
) *RuleEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultMaxAttempts < 1 {
		defaultMaxAttempts = 1
	}
	return &RuleEngine{
		rules:              rules,
		schedules:          schedules,
		members:            members,
		throttle:           throttle,
		defaultMaxAttempts: defaultMaxAttempts,
		now:                func() time.Time { return time.Now().UTC() },
		logger:             logger,
	}
}

// OnEvent schedules a delivery for every applicable rule. Unknown event
// types and events matching no rule are dropped without error.
func (e *RuleEngine) OnEvent(ctx context.Context, ev domain.Event) (int, error) {
	if !ev.Type.IsValid() {
		e.logger.Warn("dropping event of unknown type",
			"event_type", ev.Type,
			"event_id", ev.ID,
		)
		return 0, nil
	}

	rules, err := e.rules.FindEnabledByEvent(ctx, ev.HouseholdID, ev.Type)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, rule := range rules {
		if !rule.Matches(ev) {
			continue
		}

		sendAt, err := e.scheduleTime(ctx, rule, ev)
		if err != nil {
			e.logger.Error("failed to compute send time",
				"rule_id", rule.ID,
				"error", err,
			)
			continue
		}

		schedule := domain.NewSchedule(rule, ev.RecipientID, sendAt,
			rule.MaxAttempts(e.defaultMaxAttempts), eventMetadata(ev))

		if err := e.schedules.Create(ctx, schedule); err != nil {
			e.logger.Error("failed to persist schedule",
				"rule_id", rule.ID,
				"recipient_id", ev.RecipientID,
				"error", err,
			)
			continue
		}

		e.logger.Debug("notification scheduled",
			"schedule_id", schedule.ID,
			"rule_id", rule.ID,
			"recipient_id", ev.RecipientID,
			"scheduled_at", sendAt,
		)
		created++
	}

	return created, nil
}

// scheduleTime computes the target send time for one rule/event pair:
// trigger offset, then quiet hours, then allowed days, then the hourly
// rate limit, then the rule cooldown.
func (e *RuleEngine) scheduleTime(ctx context.Context, rule *domain.Rule, ev domain.Event) (time.Time, error) {
	now := e.now()
	offset := time.Duration(rule.Trigger.OffsetMinutes) * time.Minute

	var sendAt time.Time
	if rule.Trigger.OffsetMinutes < 0 && ev.DueAt != nil {
		// Negative offsets mean "before the due date".
		sendAt = ev.DueAt.Add(offset)
	} else {
		sendAt = now.Add(offset)
	}
	if sendAt.Before(now) {
		sendAt = now
	}

	if rule.Constraints.RespectQuietHours {
		member, err := e.members.FindByID(ctx, ev.RecipientID)
		if err != nil {
			return time.Time{}, err
		}
		if window, ok := member.QuietHours(); ok {
			sendAt = window.NextEnd(sendAt)
		}
	}

	if len(rule.Constraints.AllowedDays) > 0 {
		sendAt = nextAllowedDay(sendAt, rule.Constraints.AllowedDays)
	}

	if rule.Constraints.MaxPerHour > 0 {
		count, err := e.throttle.CountHour(ctx, ev.RecipientID, sendAt)
		if err != nil {
			return time.Time{}, err
		}
		if count >= rule.Constraints.MaxPerHour {
			// Never dropped: pushed to the next hour slot.
			sendAt = sendAt.Truncate(time.Hour).Add(time.Hour)
		}
	}

	if cd := rule.Cooldown(); cd > 0 {
		last, ok, err := e.throttle.LastFire(ctx, rule.ID, ev.RecipientID)
		if err != nil {
			return time.Time{}, err
		}
		if ok && sendAt.Before(last.Add(cd)) {
			sendAt = last.Add(cd)
		}
	}

	return sendAt, nil
}

func nextAllowedDay(t time.Time, allowed []time.Weekday) time.Time {
	for i := 0; i < 7; i++ {
		for _, d := range allowed {
			if t.Weekday() == d {
				return t
			}
		}
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func eventMetadata(ev domain.Event) map[string]any {
	md := map[string]any{
		"event_id":   ev.ID.String(),
		"event_type": string(ev.Type),
		"task_title": ev.TaskTitle,
		"category":   ev.Category,
		"priority":   string(ev.Priority),
		"points":     ev.Points,
		"streak":     ev.Streak,
	}
	if ev.TaskInstanceID != nil {
		md["task_instance_id"] = ev.TaskInstanceID.String()
	}
	if ev.DueAt != nil {
		md["due_at"] = ev.DueAt.Format(time.RFC3339)
	}
	return md
}

// WithClock overrides the engine's time source. Test hook.
func (e *RuleEngine) WithClock(now func() time.Time) *RuleEngine {
	e.now = now
	return e
}

// Metadata helpers shared with the dispatcher.
func metadataString(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}

// metadataUUID parses a UUID metadata field, returning uuid.Nil when absent.
func metadataUUID(md map[string]any, key string) uuid.UUID {
	id, err := uuid.Parse(metadataString(md, key))
	if err != nil {
		return uuid.Nil
	}
	return id
}
