package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choreminder/choreminder/internal/chores/domain"
)

type lifecycleFixture struct {
	tasks     *mockTaskRepo
	instances *mockInstanceRepo
	publisher *capturePublisher
	emitter   *LifecycleEmitter
}

func newLifecycleFixture() *lifecycleFixture {
	f := &lifecycleFixture{
		tasks:     newMockTaskRepo(),
		instances: newMockInstanceRepo(),
		publisher: &capturePublisher{},
	}
	f.emitter = NewLifecycleEmitter(f.tasks, f.instances, f.publisher, testLogger())
	return f
}

// templateInstance stores a recurring template and returns one of its
// occurrences.
func (f *lifecycleFixture) templateInstance(t *testing.T) (*domain.ScheduledTask, *domain.TaskInstance) {
	t.Helper()
	task := dailyTask(t)
	require.NoError(t, f.tasks.Create(context.Background(), task))
	instance := domain.NewInstanceFromTask(task, time.Now().UTC())
	require.NoError(t, f.instances.Create(context.Background(), instance))
	return task, instance
}

func decodeEvent(t *testing.T, payload []byte) domain.InstanceEvent {
	t.Helper()
	var event domain.InstanceEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func TestLifecycleEmitter_EmitDueSoon(t *testing.T) {
	f := newLifecycleFixture()

	householdID := uuid.New()
	assignee := uuid.New()
	now := time.Now().UTC()

	addInstance(t, f.instances, householdID, assignee, "Soon", now.Add(30*time.Minute), 10*time.Minute)
	addInstance(t, f.instances, householdID, assignee, "Later", now.Add(3*time.Hour), 10*time.Minute)

	count, err := f.emitter.EmitDueSoon(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, f.publisher.messages, 1)
	assert.Equal(t, domain.RoutingInstanceDueSoon, f.publisher.messages[0])
}

func TestLifecycleEmitter_EmitOverdue(t *testing.T) {
	f := newLifecycleFixture()

	householdID := uuid.New()
	assignee := uuid.New()
	now := time.Now().UTC()

	addInstance(t, f.instances, householdID, assignee, "Missed", now.Add(-2*time.Hour), 10*time.Minute)
	done := addInstance(t, f.instances, householdID, assignee, "Done late", now.Add(-time.Hour), 10*time.Minute)
	require.NoError(t, done.Complete())

	count, err := f.emitter.EmitOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count, "completed instances are never overdue")
	require.Len(t, f.publisher.messages, 1)
	assert.Equal(t, domain.RoutingInstanceOverdue, f.publisher.messages[0])
}

func TestLifecycleEmitter_EmitOverdueBreaksStreak(t *testing.T) {
	f := newLifecycleFixture()
	task, instance := f.templateInstance(t)
	task.Streak = 5
	task.BestStreak = 5
	instance.DueDate = time.Now().UTC().Add(-2 * time.Hour)

	count, err := f.emitter.EmitOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Zero(t, task.Streak, "a missed occurrence resets the run")
	assert.Equal(t, 5, task.BestStreak, "the best run survives the reset")
}

func TestLifecycleEmitter_EmitCompletedExtendsStreak(t *testing.T) {
	f := newLifecycleFixture()
	task, instance := f.templateInstance(t)

	f.emitter.EmitCompleted(context.Background(), instance)

	assert.Equal(t, 1, task.Streak)
	require.Len(t, f.publisher.messages, 1)
	assert.Equal(t, domain.RoutingInstanceCompleted, f.publisher.messages[0])

	event := decodeEvent(t, f.publisher.payloads[0])
	assert.Equal(t, 1, event.Streak, "the completion event carries the new streak")
}

func TestLifecycleEmitter_EmitCompletedPublishesMilestone(t *testing.T) {
	f := newLifecycleFixture()
	task, instance := f.templateInstance(t)
	task.Streak = 6
	task.BestStreak = 6

	f.emitter.EmitCompleted(context.Background(), instance)

	require.Len(t, f.publisher.messages, 2)
	assert.Equal(t, domain.RoutingInstanceCompleted, f.publisher.messages[0])
	assert.Equal(t, domain.RoutingInstanceMilestone, f.publisher.messages[1])

	event := decodeEvent(t, f.publisher.payloads[1])
	assert.Equal(t, 7, event.Streak)
}

func TestLifecycleEmitter_EmitCompletedOneOffHasNoStreak(t *testing.T) {
	f := newLifecycleFixture()
	instance := addInstance(t, f.instances, uuid.New(), uuid.New(), "Dishes", time.Now().UTC(), 10*time.Minute)

	f.emitter.EmitCompleted(context.Background(), instance)

	require.Len(t, f.publisher.messages, 1, "one-off completions never hit a milestone")
	event := decodeEvent(t, f.publisher.payloads[0])
	assert.Zero(t, event.Streak)
}

func TestLifecycleEmitter_EmitVerifiedCarriesStreak(t *testing.T) {
	f := newLifecycleFixture()
	task, instance := f.templateInstance(t)
	task.Streak = 3

	f.emitter.EmitVerified(context.Background(), instance)

	require.Len(t, f.publisher.messages, 1)
	assert.Equal(t, domain.RoutingInstanceVerified, f.publisher.messages[0])
	event := decodeEvent(t, f.publisher.payloads[0])
	assert.Equal(t, 3, event.Streak)
}
