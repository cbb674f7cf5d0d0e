package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choreminder/choreminder/internal/chores/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Mock repositories for testing

type mockTaskRepo struct {
	tasks map[uuid.UUID]*domain.ScheduledTask
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: make(map[uuid.UUID]*domain.ScheduledTask)}
}

func (m *mockTaskRepo) Create(ctx context.Context, task *domain.ScheduledTask) error {
	m.tasks[task.ID] = task
	return nil
}

func (m *mockTaskRepo) Update(ctx context.Context, task *domain.ScheduledTask) error {
	m.tasks[task.ID] = task
	return nil
}

func (m *mockTaskRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledTask, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

func (m *mockTaskRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.ScheduledTask, error) {
	return m.FindByID(ctx, id)
}

func (m *mockTaskRepo) FindActiveByHousehold(ctx context.Context, householdID uuid.UUID) ([]*domain.ScheduledTask, error) {
	var result []*domain.ScheduledTask
	for _, task := range m.tasks {
		if task.HouseholdID == householdID && task.Active {
			result = append(result, task)
		}
	}
	return result, nil
}

func (m *mockTaskRepo) FindAllActive(ctx context.Context) ([]*domain.ScheduledTask, error) {
	var result []*domain.ScheduledTask
	for _, task := range m.tasks {
		if task.Active {
			result = append(result, task)
		}
	}
	return result, nil
}

type mockInstanceRepo struct {
	instances map[uuid.UUID]*domain.TaskInstance
}

func newMockInstanceRepo() *mockInstanceRepo {
	return &mockInstanceRepo{instances: make(map[uuid.UUID]*domain.TaskInstance)}
}

func (m *mockInstanceRepo) Create(ctx context.Context, instance *domain.TaskInstance) error {
	m.instances[instance.ID] = instance
	return nil
}

func (m *mockInstanceRepo) Update(ctx context.Context, instance *domain.TaskInstance) error {
	m.instances[instance.ID] = instance
	return nil
}

func (m *mockInstanceRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.TaskInstance, error) {
	instance, ok := m.instances[id]
	if !ok {
		return nil, domain.ErrInstanceNotFound
	}
	return instance, nil
}

func (m *mockInstanceRepo) ExistsNear(ctx context.Context, scheduledTaskID uuid.UUID, due time.Time, window time.Duration) (bool, error) {
	for _, instance := range m.instances {
		if instance.ScheduledTaskID == nil || *instance.ScheduledTaskID != scheduledTaskID {
			continue
		}
		diff := instance.DueDate.Sub(due)
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockInstanceRepo) FindByAssigneeInRange(ctx context.Context, assigneeID uuid.UUID, start, end time.Time, statuses []domain.InstanceStatus) ([]*domain.TaskInstance, error) {
	var result []*domain.TaskInstance
	for _, instance := range m.instances {
		if instance.AssigneeID != assigneeID {
			continue
		}
		if instance.DueDate.Before(start) || !instance.DueDate.Before(end) {
			continue
		}
		if len(statuses) > 0 && !statusIn(instance.Status, statuses) {
			continue
		}
		result = append(result, instance)
	}
	return result, nil
}

func (m *mockInstanceRepo) FindByHouseholdOnDate(ctx context.Context, householdID uuid.UUID, date time.Time) ([]*domain.TaskInstance, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	var result []*domain.TaskInstance
	for _, instance := range m.instances {
		if instance.HouseholdID != householdID {
			continue
		}
		if instance.DueDate.Before(dayStart) || !instance.DueDate.Before(dayEnd) {
			continue
		}
		if instance.Status != domain.InstancePending && instance.Status != domain.InstanceInProgress {
			continue
		}
		result = append(result, instance)
	}
	return result, nil
}

func (m *mockInstanceRepo) FindOpenDueWithin(ctx context.Context, from, to time.Time) ([]*domain.TaskInstance, error) {
	var result []*domain.TaskInstance
	for _, instance := range m.instances {
		if instance.Status != domain.InstancePending && instance.Status != domain.InstanceInProgress {
			continue
		}
		if instance.DueDate.Before(from) || !instance.DueDate.Before(to) {
			continue
		}
		result = append(result, instance)
	}
	return result, nil
}

func (m *mockInstanceRepo) FindOpenOverdue(ctx context.Context, asOf time.Time) ([]*domain.TaskInstance, error) {
	var result []*domain.TaskInstance
	for _, instance := range m.instances {
		if instance.Overdue(asOf) {
			result = append(result, instance)
		}
	}
	return result, nil
}

func statusIn(s domain.InstanceStatus, list []domain.InstanceStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// noopUnitOfWork passes the context straight through.
type noopUnitOfWork struct{}

func (noopUnitOfWork) Begin(ctx context.Context) (context.Context, error) { return ctx, nil }
func (noopUnitOfWork) Commit(ctx context.Context) error                   { return nil }
func (noopUnitOfWork) Rollback(ctx context.Context) error                 { return nil }

// capturePublisher records published routing keys and payloads.
type capturePublisher struct {
	mu       sync.Mutex
	messages []string
	payloads [][]byte
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, routingKey)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func dailyTask(t *testing.T) *domain.ScheduledTask {
	t.Helper()
	task, err := domain.NewScheduledTask(uuid.New(), uuid.New(), "Dishes",
		domain.RecurrencePattern{Kind: domain.RecurrenceDaily, Interval: 1},
		time.Now().UTC(),
	)
	require.NoError(t, err)
	return task
}

func TestInstanceGenerator_GenerateUpcoming(t *testing.T) {
	tasks := newMockTaskRepo()
	instances := newMockInstanceRepo()
	publisher := &capturePublisher{}
	generator := NewInstanceGenerator(tasks, instances, noopUnitOfWork{}, publisher, testLogger())

	task := dailyTask(t)
	require.NoError(t, tasks.Create(context.Background(), task))

	created, err := generator.GenerateUpcoming(context.Background(), task.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, created, "one instance per day over the horizon")
	assert.Len(t, instances.instances, 7)
	assert.Len(t, publisher.messages, 7)
	for _, key := range publisher.messages {
		assert.Equal(t, domain.RoutingInstanceGenerated, key)
	}

	stored := tasks.tasks[task.ID]
	require.NotNil(t, stored.LastGenerated)
	assert.Equal(t, 7, stored.Occurrences)
}

type generatorTxKey struct{}

// markingUnitOfWork tags the transaction context so repo calls can be
// checked for running inside it.
type markingUnitOfWork struct{}

func (markingUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	return context.WithValue(ctx, generatorTxKey{}, true), nil
}
func (markingUnitOfWork) Commit(ctx context.Context) error   { return nil }
func (markingUnitOfWork) Rollback(ctx context.Context) error { return nil }

type lockTrackingTaskRepo struct {
	*mockTaskRepo
	lockedReads     int
	lockedReadsInTx int
}

func (r *lockTrackingTaskRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.ScheduledTask, error) {
	r.lockedReads++
	if ctx.Value(generatorTxKey{}) != nil {
		r.lockedReadsInTx++
	}
	return r.mockTaskRepo.FindByIDForUpdate(ctx, id)
}

func TestInstanceGenerator_LocksTemplateInsideTransaction(t *testing.T) {
	tasks := &lockTrackingTaskRepo{mockTaskRepo: newMockTaskRepo()}
	instances := newMockInstanceRepo()
	generator := NewInstanceGenerator(tasks, instances, markingUnitOfWork{}, &capturePublisher{}, testLogger())

	task := dailyTask(t)
	require.NoError(t, tasks.Create(context.Background(), task))

	created, err := generator.GenerateUpcoming(context.Background(), task.ID, 7)
	require.NoError(t, err)
	require.Equal(t, 7, created)

	// The template read takes the row lock inside the same transaction
	// as the dedupe check and the batch, so two concurrent runs
	// serialize instead of both passing the check.
	assert.Equal(t, 1, tasks.lockedReads)
	assert.Equal(t, 1, tasks.lockedReadsInTx)
}

func TestInstanceGenerator_Idempotent(t *testing.T) {
	tasks := newMockTaskRepo()
	instances := newMockInstanceRepo()
	generator := NewInstanceGenerator(tasks, instances, noopUnitOfWork{}, &capturePublisher{}, testLogger())

	task := dailyTask(t)
	require.NoError(t, tasks.Create(context.Background(), task))

	created, err := generator.GenerateUpcoming(context.Background(), task.ID, 7)
	require.NoError(t, err)
	require.Equal(t, 7, created)

	// A second run over the same horizon creates nothing new.
	created, err = generator.GenerateUpcoming(context.Background(), task.ID, 7)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Len(t, instances.instances, 7)
}

func TestInstanceGenerator_WeeklyPattern(t *testing.T) {
	tasks := newMockTaskRepo()
	instances := newMockInstanceRepo()
	generator := NewInstanceGenerator(tasks, instances, noopUnitOfWork{}, &capturePublisher{}, testLogger())

	task, err := domain.NewScheduledTask(uuid.New(), uuid.New(), "Laundry",
		domain.RecurrencePattern{
			Kind:       domain.RecurrenceWeekly,
			Interval:   1,
			DaysOfWeek: []time.Weekday{time.Monday, time.Thursday},
		},
		time.Now().UTC(),
	)
	require.NoError(t, err)
	require.NoError(t, tasks.Create(context.Background(), task))

	created, err := generator.GenerateUpcoming(context.Background(), task.ID, 14)
	require.NoError(t, err)
	assert.Equal(t, 4, created, "two weekdays per week over two weeks")

	for _, instance := range instances.instances {
		day := instance.DueDate.Weekday()
		assert.Contains(t, []time.Weekday{time.Monday, time.Thursday}, day)
	}
}

func TestInstanceGenerator_RespectsOccurrenceBudget(t *testing.T) {
	tasks := newMockTaskRepo()
	instances := newMockInstanceRepo()
	generator := NewInstanceGenerator(tasks, instances, noopUnitOfWork{}, &capturePublisher{}, testLogger())

	task, err := domain.NewScheduledTask(uuid.New(), uuid.New(), "Water plants",
		domain.RecurrencePattern{Kind: domain.RecurrenceDaily, Interval: 1, MaxOccurrences: 3},
		time.Now().UTC(),
	)
	require.NoError(t, err)
	require.NoError(t, tasks.Create(context.Background(), task))

	created, err := generator.GenerateUpcoming(context.Background(), task.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, created)
}

func TestInstanceGenerator_InactiveTask(t *testing.T) {
	tasks := newMockTaskRepo()
	generator := NewInstanceGenerator(tasks, newMockInstanceRepo(), noopUnitOfWork{}, &capturePublisher{}, testLogger())

	task := dailyTask(t)
	task.Deactivate()
	require.NoError(t, tasks.Create(context.Background(), task))

	created, err := generator.GenerateUpcoming(context.Background(), task.ID, 7)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestInstanceGenerator_GenerateAll(t *testing.T) {
	tasks := newMockTaskRepo()
	instances := newMockInstanceRepo()
	generator := NewInstanceGenerator(tasks, instances, noopUnitOfWork{}, &capturePublisher{}, testLogger())

	for i := 0; i < 3; i++ {
		require.NoError(t, tasks.Create(context.Background(), dailyTask(t)))
	}

	created, err := generator.GenerateAll(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 6, created)
}
