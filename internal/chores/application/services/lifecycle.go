package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/choreminder/choreminder/internal/chores/domain"
	"github.com/choreminder/choreminder/internal/shared/infrastructure/eventbus"
)

// LifecycleEmitter publishes chore lifecycle events (due-soon, overdue,
// completed, verified, milestone) onto the event bus where the
// notification rules pick them up. It also maintains each template's
// completion streak: completions extend it, overdue occurrences break it.
type LifecycleEmitter struct {
	tasks     domain.TaskRepository
	instances domain.InstanceRepository
	publisher eventbus.Publisher
	logger    *slog.Logger
}

// NewLifecycleEmitter creates a new lifecycle emitter.
func NewLifecycleEmitter(
	tasks domain.TaskRepository,
	instances domain.InstanceRepository,
	publisher eventbus.Publisher,
	logger *slog.Logger,
) *LifecycleEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleEmitter{
		tasks:     tasks,
		instances: instances,
		publisher: publisher,
		logger:    logger,
	}
}

// EmitDueSoon publishes a due-soon event for every open instance whose
// due date falls within the window from now.
func (e *LifecycleEmitter) EmitDueSoon(ctx context.Context, within time.Duration) (int, error) {
	now := time.Now().UTC()
	instances, err := e.instances.FindOpenDueWithin(ctx, now, now.Add(within))
	if err != nil {
		return 0, err
	}

	for _, instance := range instances {
		e.publish(ctx, domain.NewInstanceDueSoon(instance))
	}
	return len(instances), nil
}

// EmitOverdue publishes an overdue event for every open instance whose
// due date has passed, and breaks the completion streak of each
// affected template.
func (e *LifecycleEmitter) EmitOverdue(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	instances, err := e.instances.FindOpenOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, instance := range instances {
		e.breakStreak(ctx, instance)
		e.publish(ctx, domain.NewInstanceOverdue(instance))
	}
	return len(instances), nil
}

// EmitCompleted records the completion against the template's streak and
// publishes the completion event; a streak crossing one of
// domain.StreakMilestones publishes a milestone event as well.
func (e *LifecycleEmitter) EmitCompleted(ctx context.Context, instance *domain.TaskInstance) {
	streak, milestone := e.recordCompletion(ctx, instance)
	e.publish(ctx, domain.NewInstanceCompleted(instance, streak))
	if milestone > 0 {
		e.publish(ctx, domain.NewInstanceMilestone(instance, streak))
	}
}

// EmitVerified publishes the approval event for one instance, carrying
// the template's current streak.
func (e *LifecycleEmitter) EmitVerified(ctx context.Context, instance *domain.TaskInstance) {
	streak := 0
	if task := e.template(ctx, instance); task != nil {
		streak = task.Streak
	}
	e.publish(ctx, domain.NewInstanceVerified(instance, streak))
}

// recordCompletion extends the template streak and persists it. One-off
// instances have no template and no streak.
func (e *LifecycleEmitter) recordCompletion(ctx context.Context, instance *domain.TaskInstance) (streak, milestone int) {
	task := e.template(ctx, instance)
	if task == nil {
		return 0, 0
	}

	milestone = task.RecordCompletion()
	if err := e.tasks.Update(ctx, task); err != nil {
		e.logger.Error("failed to persist streak",
			"task_id", task.ID,
			"error", err,
		)
	}
	return task.Streak, milestone
}

func (e *LifecycleEmitter) breakStreak(ctx context.Context, instance *domain.TaskInstance) {
	task := e.template(ctx, instance)
	if task == nil || task.Streak == 0 {
		return
	}
	task.BreakStreak()
	if err := e.tasks.Update(ctx, task); err != nil {
		e.logger.Error("failed to persist streak reset",
			"task_id", task.ID,
			"error", err,
		)
	}
}

func (e *LifecycleEmitter) template(ctx context.Context, instance *domain.TaskInstance) *domain.ScheduledTask {
	if instance.ScheduledTaskID == nil {
		return nil
	}
	task, err := e.tasks.FindByID(ctx, *instance.ScheduledTaskID)
	if err != nil {
		e.logger.Warn("template lookup failed",
			"task_id", *instance.ScheduledTaskID,
			"error", err,
		)
		return nil
	}
	return task
}

func (e *LifecycleEmitter) publish(ctx context.Context, event domain.InstanceEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("failed to marshal event", "error", err)
		return
	}
	if err := e.publisher.Publish(ctx, event.RoutingKey(), payload); err != nil {
		e.logger.Error("failed to publish event",
			"routing_key", event.RoutingKey(),
			"error", err,
		)
	}
}
