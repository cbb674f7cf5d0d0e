// Package services contains the chore scheduling application services.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/choreminder/choreminder/internal/chores/domain"
	"github.com/choreminder/choreminder/internal/shared/application"
	"github.com/choreminder/choreminder/internal/shared/infrastructure/eventbus"
)

// DedupeWindow is the window around a computed due date within which an
// existing instance suppresses generation of a new one.
const DedupeWindow = 12 * time.Hour

// InstanceGenerator materializes concrete task instances from recurring
// templates, idempotently up to a horizon.
type InstanceGenerator struct {
	tasks     domain.TaskRepository
	instances domain.InstanceRepository
	uow       application.UnitOfWork
	publisher eventbus.Publisher
	holidays  *domain.HolidayCalendar
	logger    *slog.Logger
}

// NewInstanceGenerator creates a new instance generator.
func NewInstanceGenerator(
	tasks domain.TaskRepository,
	instances domain.InstanceRepository,
	uow application.UnitOfWork,
	publisher eventbus.Publisher,
	logger *slog.Logger,
) *InstanceGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstanceGenerator{
		tasks:     tasks,
		instances: instances,
		uow:       uow,
		publisher: publisher,
		holidays:  domain.DefaultHolidays,
		logger:    logger,
	}
}

// GenerateUpcoming materializes instances for one template up to
// now+horizonDays. Safe to call repeatedly: an existing instance within
// DedupeWindow of a computed due date suppresses the new one. The batch
// and the high-water mark update commit in a single transaction, with
// the template row locked for its duration, so the mark never advances
// past a due date whose instance failed to persist and two concurrent
// runs for the same template cannot both pass the dedupe check.
func (g *InstanceGenerator) GenerateUpcoming(ctx context.Context, scheduleID uuid.UUID, horizonDays int) (int, error) {
	now := time.Now().UTC()
	horizon := now.AddDate(0, 0, horizonDays)

	var generated []*domain.TaskInstance

	err := application.WithUnitOfWork(ctx, g.uow, func(txCtx context.Context) error {
		task, err := g.tasks.FindByIDForUpdate(txCtx, scheduleID)
		if err != nil {
			return err
		}
		if !task.Active {
			return nil
		}

		cursor := task.GenerationCursor(now)
		highWater := cursor
		created := 0

		for {
			next, err := domain.NextDueDateIn(task.Pattern, cursor, g.holidays)
			if err != nil {
				return err
			}
			if next.After(horizon) {
				break
			}
			if task.Pattern.Ended(next, task.Occurrences+created) {
				break
			}

			exists, err := g.instances.ExistsNear(txCtx, task.ID, next, DedupeWindow)
			if err != nil {
				return err
			}
			if !exists {
				instance := domain.NewInstanceFromTask(task, next)
				if err := g.instances.Create(txCtx, instance); err != nil {
					return fmt.Errorf("failed to persist instance due %s: %w", next, err)
				}
				generated = append(generated, instance)
				created++
			}

			cursor = next
			highWater = next
		}

		if highWater.After(task.GenerationCursor(now)) || task.LastGenerated == nil {
			task.RecordGeneration(highWater, created)
			if err := g.tasks.Update(txCtx, task); err != nil {
				return fmt.Errorf("failed to advance generation mark: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	// Publish after commit so consumers never see rolled-back instances.
	for _, instance := range generated {
		g.publishGenerated(ctx, instance)
	}

	g.logger.Info("instance generation completed",
		"schedule_id", scheduleID,
		"horizon_days", horizonDays,
		"created", len(generated),
	)

	return len(generated), nil
}

// GenerateAll runs GenerateUpcoming for every active template. One
// template's failure is logged and does not block the others.
func (g *InstanceGenerator) GenerateAll(ctx context.Context, horizonDays int) (int, error) {
	tasks, err := g.tasks.FindAllActive(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, task := range tasks {
		created, err := g.GenerateUpcoming(ctx, task.ID, horizonDays)
		if err != nil {
			g.logger.Error("generation failed for schedule",
				"schedule_id", task.ID,
				"error", err,
			)
			continue
		}
		total += created
	}

	return total, nil
}

func (g *InstanceGenerator) publishGenerated(ctx context.Context, instance *domain.TaskInstance) {
	if g.publisher == nil {
		return
	}
	event := domain.NewInstanceGenerated(instance)
	payload, err := json.Marshal(event)
	if err != nil {
		g.logger.Error("failed to marshal event", "error", err)
		return
	}
	if err := g.publisher.Publish(ctx, event.RoutingKey(), payload); err != nil {
		g.logger.Error("failed to publish event",
			"routing_key", event.RoutingKey(),
			"error", err,
		)
	}
}
