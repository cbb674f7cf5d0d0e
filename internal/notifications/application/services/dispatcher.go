package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	householdDomain "github.com/choreminder/choreminder/internal/household/domain"
	"github.com/choreminder/choreminder/internal/notifications/domain"
	sharedDomain "github.com/choreminder/choreminder/internal/shared/domain"
	"github.com/choreminder/choreminder/internal/shared/infrastructure/eventbus"
)

// SweepStats summarizes one dispatcher pass.
type SweepStats struct {
	Claimed   int
	Sent      int
	Retried   int
	Failed    int
	Escalated int
	Deferred  int
}

// Dispatcher claims due schedules, attempts delivery through the
// recipient's preferred channel, retries failures, and escalates
// exhausted deliveries to the household admins. One schedule's failure
// never blocks the rest of the pass.
type Dispatcher struct {
	schedules domain.ScheduleRepository
	rules     domain.RuleRepository
	members   householdDomain.MemberRepository
	throttle  domain.ThrottleStore
	messenger domain.Messenger
	composer  Composer
	publisher eventbus.Publisher

	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(
	schedules domain.ScheduleRepository,
	rules domain.RuleRepository,
	members householdDomain.MemberRepository,
	throttle domain.ThrottleStore,
	messenger domain.Messenger,
	composer Composer,
	publisher eventbus.Publisher,
	batchSize int,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize < 1 {
		batchSize = 100
	}
	if composer == nil {
		composer = NewTemplateComposer()
	}
	return &Dispatcher{
		schedules: schedules,
		rules:     rules,
		members:   members,
		throttle:  throttle,
		messenger: messenger,
		composer:  composer,
		publisher: publisher,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// RunSweep processes every pending schedule whose send time has arrived.
// Cancelled entries are never claimed. Each attempt is claimed in storage
// before the delivery call, so a schedule a concurrent pass already
// claimed or finished is skipped without sending.
func (d *Dispatcher) RunSweep(ctx context.Context) (SweepStats, error) {
	now := d.now()
	stats := SweepStats{}

	due, err := d.schedules.FindDue(ctx, now, d.batchSize)
	if err != nil {
		return stats, err
	}
	stats.Claimed = len(due)

	for _, schedule := range due {
		if err := d.process(ctx, schedule, now, &stats); err != nil {
			// Recovered locally; the sweep carries on.
			d.logger.Error("schedule processing failed",
				"schedule_id", schedule.ID,
				"error", err,
			)
		}
	}

	d.logger.Info("sweep completed",
		"claimed", stats.Claimed,
		"sent", stats.Sent,
		"retried", stats.Retried,
		"failed", stats.Failed,
		"escalated", stats.Escalated,
		"deferred", stats.Deferred,
	)

	return stats, nil
}

func (d *Dispatcher) process(ctx context.Context, schedule *domain.Schedule, now time.Time, stats *SweepStats) error {
	rule, err := d.rules.FindByID(ctx, schedule.RuleID)
	if err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			// Orphaned schedule: its rule was deleted. Withdraw it.
			if cancelErr := schedule.Cancel(); cancelErr != nil {
				return cancelErr
			}
			_, err = d.schedules.Update(ctx, schedule)
			return err
		}
		return err
	}

	// Live cooldown recheck: another delivery for this rule/recipient
	// may have fired since scheduling.
	if cd := rule.Cooldown(); cd > 0 {
		last, ok, err := d.throttle.LastFire(ctx, rule.ID, schedule.RecipientID)
		if err != nil {
			return err
		}
		if ok && now.Before(last.Add(cd)) {
			return d.deferSchedule(ctx, schedule, last.Add(cd), stats)
		}
	}

	// Atomic per-recipient rate-limit reservation for this hour slot.
	if max := rule.Constraints.MaxPerHour; max > 0 {
		ok, err := d.throttle.Reserve(ctx, schedule.RecipientID, now, max)
		if err != nil {
			return err
		}
		if !ok {
			return d.deferSchedule(ctx, schedule, now.Truncate(time.Hour).Add(time.Hour), stats)
		}
	}

	// Claim the attempt in storage before anything leaves the process.
	// The compare-and-swap loses against a concurrent pass that already
	// claimed or finished the row, so a delivery is never sent twice.
	claimed, err := d.schedules.Claim(ctx, schedule.ID, schedule.Attempts, now)
	if err != nil {
		return err
	}
	if !claimed {
		if rule.Constraints.MaxPerHour > 0 {
			if err := d.throttle.Release(ctx, schedule.RecipientID, now); err != nil {
				d.logger.Warn("failed to release rate-limit slot", "error", err)
			}
		}
		d.logger.Debug("lost claim on schedule", "schedule_id", schedule.ID)
		return nil
	}
	if err := schedule.BeginAttempt(now); err != nil {
		return err
	}

	req := d.composer.Compose(schedule, rule)
	result, sendErr := d.messenger.Send(ctx, req)

	if sendErr == nil && result.Success {
		if err := schedule.MarkSent(now); err != nil {
			return err
		}
		updated, err := d.schedules.Update(ctx, schedule)
		if err != nil {
			return err
		}
		if !updated {
			// Cancelled out from under the claim between Claim and here.
			d.logger.Debug("schedule turned terminal mid-attempt", "schedule_id", schedule.ID)
			return nil
		}
		if err := d.throttle.RecordFire(ctx, rule.ID, schedule.RecipientID, now); err != nil {
			d.logger.Warn("failed to record cooldown stamp", "error", err)
		}
		stats.Sent++
		return nil
	}

	// Failed attempt: give the rate-limit slot back so the retry is not
	// charged twice.
	if rule.Constraints.MaxPerHour > 0 {
		if err := d.throttle.Release(ctx, schedule.RecipientID, now); err != nil {
			d.logger.Warn("failed to release rate-limit slot", "error", err)
		}
	}

	reason := failureReason(result, sendErr)
	exhausted, err := schedule.RecordFailure(now, reason, rule.RetryDelay())
	if err != nil {
		return err
	}

	if exhausted {
		stats.Failed++
		if rule.Actions.Escalation.Enabled && rule.Actions.Escalation.EscalateToAdmins && !schedule.Escalated {
			if err := d.escalate(ctx, schedule, rule, stats); err != nil {
				d.logger.Error("escalation failed",
					"schedule_id", schedule.ID,
					"error", err,
				)
			}
		}
		d.publishEvent(ctx, domain.NewDeliveryFailed(schedule))
	} else {
		stats.Retried++
	}

	updated, err := d.schedules.Update(ctx, schedule)
	if err != nil {
		return err
	}
	if !updated {
		d.logger.Debug("skipping already-terminal schedule", "schedule_id", schedule.ID)
	}
	return nil
}

// escalate fans the failure out to the household admins as an urgent
// message referencing the original delivery. The schedule's Escalated
// flag guarantees the fan-out fires at most once across sweeps.
func (d *Dispatcher) escalate(ctx context.Context, schedule *domain.Schedule, rule *domain.Rule, stats *SweepStats) error {
	admins, err := d.members.FindAdmins(ctx, schedule.HouseholdID)
	if err != nil {
		return err
	}

	var notified []uuid.UUID
	for _, admin := range admins {
		if admin.ID == schedule.RecipientID {
			continue
		}
		req := d.composer.ComposeEscalation(schedule, rule, admin)
		if _, err := d.messenger.Send(ctx, req); err != nil {
			d.logger.Warn("escalation send failed",
				"admin_id", admin.ID,
				"error", err,
			)
			continue
		}
		notified = append(notified, admin.ID)
	}

	schedule.MarkEscalated()
	stats.Escalated++
	d.publishEvent(ctx, domain.NewEscalated(schedule, notified))
	return nil
}

func (d *Dispatcher) deferSchedule(ctx context.Context, schedule *domain.Schedule, until time.Time, stats *SweepStats) error {
	if err := schedule.Defer(until); err != nil {
		return err
	}
	if _, err := d.schedules.Update(ctx, schedule); err != nil {
		return err
	}
	stats.Deferred++
	return nil
}

func (d *Dispatcher) publishEvent(ctx context.Context, event sharedDomain.DomainEvent) {
	if d.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("failed to marshal event", "error", err)
		return
	}
	if err := d.publisher.Publish(ctx, event.RoutingKey(), payload); err != nil {
		d.logger.Error("failed to publish event",
			"routing_key", event.RoutingKey(),
			"error", err,
		)
	}
}

func failureReason(result domain.SendResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if result.Error != "" {
		return result.Error
	}
	return "delivery rejected by messaging provider"
}

// WithClock overrides the dispatcher's time source. Test hook.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}
