// Package subscribers bridges the event bus into the notification engine.
package subscribers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	choresDomain "github.com/choreminder/choreminder/internal/chores/domain"
	"github.com/choreminder/choreminder/internal/notifications/application/services"
	"github.com/choreminder/choreminder/internal/notifications/domain"
	"github.com/choreminder/choreminder/internal/shared/infrastructure/eventbus"
)

// routing key -> notification event type
var eventTypeByRoutingKey = map[string]domain.EventType{
	choresDomain.RoutingInstanceGenerated: domain.EventAssigned,
	choresDomain.RoutingInstanceDueSoon:   domain.EventDueSoon,
	choresDomain.RoutingInstanceOverdue:   domain.EventOverdue,
	choresDomain.RoutingInstanceCompleted: domain.EventCompleted,
	choresDomain.RoutingInstanceVerified:  domain.EventApproved,
	choresDomain.RoutingInstanceMilestone: domain.EventMilestone,
}

// ChoreEventConsumer turns chore lifecycle events into rule engine input.
type ChoreEventConsumer struct {
	engine *services.RuleEngine
	logger *slog.Logger
}

// NewChoreEventConsumer creates a consumer feeding the rule engine.
func NewChoreEventConsumer(engine *services.RuleEngine, logger *slog.Logger) *ChoreEventConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChoreEventConsumer{engine: engine, logger: logger}
}

// EventTypes returns the chore routing keys this consumer handles.
func (c *ChoreEventConsumer) EventTypes() []string {
	keys := make([]string, 0, len(eventTypeByRoutingKey))
	for key := range eventTypeByRoutingKey {
		keys = append(keys, key)
	}
	return keys
}

// Handle translates the consumed event and runs it through the rules.
func (c *ChoreEventConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	eventType, ok := eventTypeByRoutingKey[event.RoutingKey]
	if !ok {
		c.logger.Warn("ignoring event with unmapped routing key",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
		)
		return nil
	}

	var payload choresDomain.InstanceEvent
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}

	created, err := c.engine.OnEvent(ctx, toNotificationEvent(event.EventID, eventType, payload))
	if err != nil {
		return err
	}

	c.logger.Debug("processed chore event",
		"routing_key", event.RoutingKey,
		"instance_id", payload.InstanceID,
		"schedules_created", created,
	)
	return nil
}

func toNotificationEvent(eventID uuid.UUID, eventType domain.EventType, payload choresDomain.InstanceEvent) domain.Event {
	ev := domain.Event{
		ID:          eventID,
		Type:        eventType,
		HouseholdID: payload.HouseholdID,
		RecipientID: payload.AssigneeID,
		TaskTitle:   payload.Title,
		Category:    payload.Category,
		Priority:    priorityFor(eventType),
		Points:      payload.Points,
		Streak:      payload.Streak,
		OccurredAt:  payload.OccurredAt(),
	}

	instanceID := payload.InstanceID
	ev.TaskInstanceID = &instanceID
	if !payload.DueDate.IsZero() {
		due := payload.DueDate
		ev.DueAt = &due
	}
	return ev
}

// priorityFor grades the lifecycle moment: overdue chores press harder
// than routine assignments.
func priorityFor(eventType domain.EventType) domain.Priority {
	switch eventType {
	case domain.EventOverdue:
		return domain.PriorityHigh
	case domain.EventDueSoon:
		return domain.PriorityNormal
	case domain.EventCompleted, domain.EventApproved:
		return domain.PriorityLow
	default:
		return domain.PriorityNormal
	}
}

var _ eventbus.EventConsumer = (*ChoreEventConsumer)(nil)
