package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/choreminder/choreminder/internal/chores/domain"
	sharedPersistence "github.com/choreminder/choreminder/internal/shared/infrastructure/persistence"
)

// openStatuses are the non-terminal instance states.
var openStatuses = []string{
	string(domain.InstancePending),
	string(domain.InstanceInProgress),
}

// PostgresInstanceRepository implements domain.InstanceRepository using PostgreSQL.
type PostgresInstanceRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresInstanceRepository creates a new PostgreSQL instance repository.
func NewPostgresInstanceRepository(pool *pgxpool.Pool) *PostgresInstanceRepository {
	return &PostgresInstanceRepository{pool: pool}
}

// Create inserts a chore occurrence.
func (r *PostgresInstanceRepository) Create(ctx context.Context, instance *domain.TaskInstance) error {
	query := `
		INSERT INTO task_instances (
			id, scheduled_task_id, household_id, assignee_id, title, category,
			points, due_date, estimated_minutes, status, completed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		instance.ID, instance.ScheduledTaskID, instance.HouseholdID, instance.AssigneeID,
		instance.Title, instance.Category, instance.Points,
		instance.DueDate, int(instance.EstimatedDuration.Minutes()),
		string(instance.Status), instance.CompletedAt,
		instance.CreatedAt, instance.UpdatedAt,
	)
	return err
}

// Update replaces an instance's mutable fields.
func (r *PostgresInstanceRepository) Update(ctx context.Context, instance *domain.TaskInstance) error {
	query := `
		UPDATE task_instances SET
			assignee_id = $2, title = $3, category = $4, points = $5,
			due_date = $6, estimated_minutes = $7, status = $8, completed_at = $9,
			updated_at = $10
		WHERE id = $1
	`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		instance.ID, instance.AssigneeID, instance.Title, instance.Category, instance.Points,
		instance.DueDate, int(instance.EstimatedDuration.Minutes()),
		string(instance.Status), instance.CompletedAt, instance.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInstanceNotFound
	}
	return nil
}

// FindByID retrieves an instance by ID.
func (r *PostgresInstanceRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.TaskInstance, error) {
	query := instanceSelect + ` WHERE id = $1`
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id)
	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInstanceNotFound
		}
		return nil, err
	}
	return instance, nil
}

// ExistsNear reports whether the template already has an instance due
// within the window around due.
func (r *PostgresInstanceRepository) ExistsNear(ctx context.Context, scheduledTaskID uuid.UUID, due time.Time, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM task_instances
			WHERE scheduled_task_id = $1 AND due_date >= $2 AND due_date <= $3
		)
	`
	var exists bool
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query,
		scheduledTaskID, due.Add(-window), due.Add(window),
	).Scan(&exists)
	return exists, err
}

// FindByAssigneeInRange returns a member's instances due in [start, end),
// optionally filtered by status.
func (r *PostgresInstanceRepository) FindByAssigneeInRange(ctx context.Context, assigneeID uuid.UUID, start, end time.Time, statuses []domain.InstanceStatus) ([]*domain.TaskInstance, error) {
	query := instanceSelect + ` WHERE assignee_id = $1 AND due_date >= $2 AND due_date < $3`
	args := []any{assigneeID, start, end}

	if len(statuses) > 0 {
		query += ` AND status = ANY($4)`
		statusStrs := make([]string, len(statuses))
		for i, s := range statuses {
			statusStrs[i] = string(s)
		}
		args = append(args, pq.Array(statusStrs))
	}
	query += ` ORDER BY due_date`

	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstances(rows)
}

// FindByHouseholdOnDate returns a household's open instances due on the
// given calendar day.
func (r *PostgresInstanceRepository) FindByHouseholdOnDate(ctx context.Context, householdID uuid.UUID, date time.Time) ([]*domain.TaskInstance, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	query := instanceSelect + `
		WHERE household_id = $1 AND due_date >= $2 AND due_date < $3 AND status = ANY($4)
		ORDER BY due_date`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query,
		householdID, dayStart, dayStart.AddDate(0, 0, 1), pq.Array(openStatuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstances(rows)
}

// FindOpenDueWithin returns open instances due in [from, to).
func (r *PostgresInstanceRepository) FindOpenDueWithin(ctx context.Context, from, to time.Time) ([]*domain.TaskInstance, error) {
	query := instanceSelect + `
		WHERE due_date >= $1 AND due_date < $2 AND status = ANY($3)
		ORDER BY due_date`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query,
		from, to, pq.Array(openStatuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstances(rows)
}

// FindOpenOverdue returns open instances whose due date has passed.
func (r *PostgresInstanceRepository) FindOpenOverdue(ctx context.Context, asOf time.Time) ([]*domain.TaskInstance, error) {
	query := instanceSelect + `
		WHERE due_date < $1 AND status = ANY($2)
		ORDER BY due_date`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query,
		asOf, pq.Array(openStatuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstances(rows)
}

const instanceSelect = `
	SELECT id, scheduled_task_id, household_id, assignee_id, title, category,
	       points, due_date, estimated_minutes, status, completed_at,
	       created_at, updated_at
	FROM task_instances`

func scanInstance(row rowScanner) (*domain.TaskInstance, error) {
	var (
		instance         domain.TaskInstance
		estimatedMinutes int
		status           string
	)
	err := row.Scan(
		&instance.ID, &instance.ScheduledTaskID, &instance.HouseholdID, &instance.AssigneeID,
		&instance.Title, &instance.Category, &instance.Points,
		&instance.DueDate, &estimatedMinutes, &status, &instance.CompletedAt,
		&instance.CreatedAt, &instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.EstimatedDuration = time.Duration(estimatedMinutes) * time.Minute
	instance.Status = domain.InstanceStatus(status)
	return &instance, nil
}

func scanInstances(rows pgx.Rows) ([]*domain.TaskInstance, error) {
	instances := make([]*domain.TaskInstance, 0)
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

var _ domain.InstanceRepository = (*PostgresInstanceRepository)(nil)
