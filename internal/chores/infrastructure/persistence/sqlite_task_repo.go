package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/choreminder/choreminder/internal/chores/domain"
	sharedPersistence "github.com/choreminder/choreminder/internal/shared/infrastructure/persistence"
)

// SQLiteTaskRepository implements domain.TaskRepository using SQLite.
type SQLiteTaskRepository struct {
	db *sql.DB
}

// NewSQLiteTaskRepository creates a new SQLite task repository.
func NewSQLiteTaskRepository(db *sql.DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{db: db}
}

// Create inserts a recurring task template.
func (r *SQLiteTaskRepository) Create(ctx context.Context, task *domain.ScheduledTask) error {
	pattern, err := json.Marshal(task.Pattern)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO scheduled_tasks (
			id, household_id, assignee_id, title, description, category, points,
			estimated_minutes, pattern, next_due, last_generated, occurrences,
			streak, best_streak, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = sharedPersistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		task.ID.String(), task.HouseholdID.String(), task.AssigneeID.String(),
		task.Title, task.Description, task.Category, task.Points,
		int(task.EstimatedDuration.Minutes()), string(pattern),
		task.NextDue.UTC().Format(time.RFC3339), nullTime(task.LastGenerated), task.Occurrences,
		task.Streak, task.BestStreak, boolToInt(task.Active),
		task.CreatedAt.Format(time.RFC3339), task.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// Update replaces the template's mutable fields.
func (r *SQLiteTaskRepository) Update(ctx context.Context, task *domain.ScheduledTask) error {
	pattern, err := json.Marshal(task.Pattern)
	if err != nil {
		return err
	}

	query := `
		UPDATE scheduled_tasks SET
			assignee_id = ?, title = ?, description = ?, category = ?, points = ?,
			estimated_minutes = ?, pattern = ?, next_due = ?, last_generated = ?,
			occurrences = ?, streak = ?, best_streak = ?, active = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := sharedPersistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		task.AssigneeID.String(), task.Title, task.Description, task.Category, task.Points,
		int(task.EstimatedDuration.Minutes()), string(pattern),
		task.NextDue.UTC().Format(time.RFC3339), nullTime(task.LastGenerated),
		task.Occurrences, task.Streak, task.BestStreak, boolToInt(task.Active),
		task.UpdatedAt.Format(time.RFC3339),
		task.ID.String(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// FindByID retrieves a task template by ID.
func (r *SQLiteTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledTask, error) {
	query := sqliteTaskSelect + ` WHERE id = ?`
	row := sharedPersistence.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, id.String())
	task, err := scanSQLiteTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// FindByIDForUpdate retrieves a task template by ID. SQLite transactions
// hold a single writer lock, so the plain read already serializes
// concurrent generation runs.
func (r *SQLiteTaskRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.ScheduledTask, error) {
	return r.FindByID(ctx, id)
}

// FindActiveByHousehold retrieves a household's active templates.
func (r *SQLiteTaskRepository) FindActiveByHousehold(ctx context.Context, householdID uuid.UUID) ([]*domain.ScheduledTask, error) {
	query := sqliteTaskSelect + ` WHERE household_id = ? AND active = 1 ORDER BY next_due`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query, householdID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteTasks(rows)
}

// FindAllActive retrieves every active template across households.
func (r *SQLiteTaskRepository) FindAllActive(ctx context.Context) ([]*domain.ScheduledTask, error) {
	query := sqliteTaskSelect + ` WHERE active = 1 ORDER BY next_due`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteTasks(rows)
}

const sqliteTaskSelect = `
	SELECT id, household_id, assignee_id, title, description, category, points,
	       estimated_minutes, pattern, next_due, last_generated, occurrences,
	       streak, best_streak, active, created_at, updated_at
	FROM scheduled_tasks`

func scanSQLiteTask(row rowScanner) (*domain.ScheduledTask, error) {
	var (
		idStr            string
		householdStr     string
		assigneeStr      string
		estimatedMinutes int
		pattern          string
		nextDue          string
		lastGenerated    sql.NullString
		active           int
		createdAt        string
		updatedAt        string
		task             domain.ScheduledTask
	)
	err := row.Scan(
		&idStr, &householdStr, &assigneeStr,
		&task.Title, &task.Description, &task.Category, &task.Points,
		&estimatedMinutes, &pattern, &nextDue, &lastGenerated, &task.Occurrences,
		&task.Streak, &task.BestStreak, &active, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if task.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if task.HouseholdID, err = uuid.Parse(householdStr); err != nil {
		return nil, err
	}
	if task.AssigneeID, err = uuid.Parse(assigneeStr); err != nil {
		return nil, err
	}
	task.EstimatedDuration = time.Duration(estimatedMinutes) * time.Minute
	if err := json.Unmarshal([]byte(pattern), &task.Pattern); err != nil {
		return nil, err
	}
	if task.NextDue, err = time.Parse(time.RFC3339, nextDue); err != nil {
		return nil, err
	}
	if lastGenerated.Valid {
		at, err := time.Parse(time.RFC3339, lastGenerated.String)
		if err != nil {
			return nil, err
		}
		task.LastGenerated = &at
	}
	task.Active = active != 0
	if task.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if task.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, err
	}
	return &task, nil
}

func scanSQLiteTasks(rows *sql.Rows) ([]*domain.ScheduledTask, error) {
	tasks := make([]*domain.ScheduledTask, 0)
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

var _ domain.TaskRepository = (*SQLiteTaskRepository)(nil)
