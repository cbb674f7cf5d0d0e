// Package persistence provides PostgreSQL and SQLite implementations of
// the chore repositories.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choreminder/choreminder/internal/chores/domain"
	sharedPersistence "github.com/choreminder/choreminder/internal/shared/infrastructure/persistence"
)

// PostgresTaskRepository implements domain.TaskRepository using PostgreSQL.
type PostgresTaskRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTaskRepository creates a new PostgreSQL task repository.
func NewPostgresTaskRepository(pool *pgxpool.Pool) *PostgresTaskRepository {
	return &PostgresTaskRepository{pool: pool}
}

// Create inserts a recurring task template.
func (r *PostgresTaskRepository) Create(ctx context.Context, task *domain.ScheduledTask) error {
	pattern, err := json.Marshal(task.Pattern)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO scheduled_tasks (
			id, household_id, assignee_id, title, description, category, points,
			estimated_minutes, pattern, next_due, last_generated, occurrences,
			streak, best_streak, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		task.ID, task.HouseholdID, task.AssigneeID,
		task.Title, task.Description, task.Category, task.Points,
		int(task.EstimatedDuration.Minutes()), pattern,
		task.NextDue, task.LastGenerated, task.Occurrences,
		task.Streak, task.BestStreak, task.Active, task.CreatedAt, task.UpdatedAt,
	)
	return err
}

// Update replaces the template's mutable fields, including the
// generation high-water mark.
func (r *PostgresTaskRepository) Update(ctx context.Context, task *domain.ScheduledTask) error {
	pattern, err := json.Marshal(task.Pattern)
	if err != nil {
		return err
	}

	query := `
		UPDATE scheduled_tasks SET
			assignee_id = $2, title = $3, description = $4, category = $5, points = $6,
			estimated_minutes = $7, pattern = $8, next_due = $9, last_generated = $10,
			occurrences = $11, streak = $12, best_streak = $13, active = $14,
			updated_at = $15
		WHERE id = $1
	`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		task.ID, task.AssigneeID, task.Title, task.Description, task.Category, task.Points,
		int(task.EstimatedDuration.Minutes()), pattern,
		task.NextDue, task.LastGenerated,
		task.Occurrences, task.Streak, task.BestStreak, task.Active, task.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// FindByID retrieves a task template by ID.
func (r *PostgresTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledTask, error) {
	query := taskSelect + ` WHERE id = $1`
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// FindByIDForUpdate retrieves a task template by ID, locking the row
// until the enclosing transaction ends.
func (r *PostgresTaskRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.ScheduledTask, error) {
	query := taskSelect + ` WHERE id = $1 FOR UPDATE`
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// FindActiveByHousehold retrieves a household's active templates.
func (r *PostgresTaskRepository) FindActiveByHousehold(ctx context.Context, householdID uuid.UUID) ([]*domain.ScheduledTask, error) {
	query := taskSelect + ` WHERE household_id = $1 AND active = TRUE ORDER BY next_due`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// FindAllActive retrieves every active template across households, used
// by the nightly generation run.
func (r *PostgresTaskRepository) FindAllActive(ctx context.Context) ([]*domain.ScheduledTask, error) {
	query := taskSelect + ` WHERE active = TRUE ORDER BY next_due`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

const taskSelect = `
	SELECT id, household_id, assignee_id, title, description, category, points,
	       estimated_minutes, pattern, next_due, last_generated, occurrences,
	       streak, best_streak, active, created_at, updated_at
	FROM scheduled_tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.ScheduledTask, error) {
	var (
		task             domain.ScheduledTask
		estimatedMinutes int
		pattern          []byte
	)
	err := row.Scan(
		&task.ID, &task.HouseholdID, &task.AssigneeID,
		&task.Title, &task.Description, &task.Category, &task.Points,
		&estimatedMinutes, &pattern,
		&task.NextDue, &task.LastGenerated, &task.Occurrences,
		&task.Streak, &task.BestStreak, &task.Active, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.EstimatedDuration = time.Duration(estimatedMinutes) * time.Minute
	if err := json.Unmarshal(pattern, &task.Pattern); err != nil {
		return nil, err
	}
	return &task, nil
}

func scanTasks(rows pgx.Rows) ([]*domain.ScheduledTask, error) {
	tasks := make([]*domain.ScheduledTask, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

var _ domain.TaskRepository = (*PostgresTaskRepository)(nil)
