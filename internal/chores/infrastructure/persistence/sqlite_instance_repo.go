package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/choreminder/choreminder/internal/chores/domain"
	sharedPersistence "github.com/choreminder/choreminder/internal/shared/infrastructure/persistence"
)

// SQLiteInstanceRepository implements domain.InstanceRepository using SQLite.
type SQLiteInstanceRepository struct {
	db *sql.DB
}

// NewSQLiteInstanceRepository creates a new SQLite instance repository.
func NewSQLiteInstanceRepository(db *sql.DB) *SQLiteInstanceRepository {
	return &SQLiteInstanceRepository{db: db}
}

// Create inserts a chore occurrence.
func (r *SQLiteInstanceRepository) Create(ctx context.Context, instance *domain.TaskInstance) error {
	var scheduledTaskID sql.NullString
	if instance.ScheduledTaskID != nil {
		scheduledTaskID = sql.NullString{String: instance.ScheduledTaskID.String(), Valid: true}
	}

	query := `
		INSERT INTO task_instances (
			id, scheduled_task_id, household_id, assignee_id, title, category,
			points, due_date, estimated_minutes, status, completed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := sharedPersistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		instance.ID.String(), scheduledTaskID, instance.HouseholdID.String(), instance.AssigneeID.String(),
		instance.Title, instance.Category, instance.Points,
		instance.DueDate.UTC().Format(time.RFC3339), int(instance.EstimatedDuration.Minutes()),
		string(instance.Status), nullTime(instance.CompletedAt),
		instance.CreatedAt.Format(time.RFC3339), instance.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// Update replaces an instance's mutable fields.
func (r *SQLiteInstanceRepository) Update(ctx context.Context, instance *domain.TaskInstance) error {
	query := `
		UPDATE task_instances SET
			assignee_id = ?, title = ?, category = ?, points = ?,
			due_date = ?, estimated_minutes = ?, status = ?, completed_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := sharedPersistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		instance.AssigneeID.String(), instance.Title, instance.Category, instance.Points,
		instance.DueDate.UTC().Format(time.RFC3339), int(instance.EstimatedDuration.Minutes()),
		string(instance.Status), nullTime(instance.CompletedAt),
		instance.UpdatedAt.Format(time.RFC3339),
		instance.ID.String(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrInstanceNotFound
	}
	return nil
}

// FindByID retrieves an instance by ID.
func (r *SQLiteInstanceRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.TaskInstance, error) {
	query := sqliteInstanceSelect + ` WHERE id = ?`
	row := sharedPersistence.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, id.String())
	instance, err := scanSQLiteInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInstanceNotFound
		}
		return nil, err
	}
	return instance, nil
}

// ExistsNear reports whether the template already has an instance due
// within the window around due.
func (r *SQLiteInstanceRepository) ExistsNear(ctx context.Context, scheduledTaskID uuid.UUID, due time.Time, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM task_instances
			WHERE scheduled_task_id = ? AND due_date >= ? AND due_date <= ?
		)
	`
	var exists int
	err := sharedPersistence.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query,
		scheduledTaskID.String(),
		due.Add(-window).UTC().Format(time.RFC3339),
		due.Add(window).UTC().Format(time.RFC3339),
	).Scan(&exists)
	return exists != 0, err
}

// FindByAssigneeInRange returns a member's instances due in [start, end),
// optionally filtered by status.
func (r *SQLiteInstanceRepository) FindByAssigneeInRange(ctx context.Context, assigneeID uuid.UUID, start, end time.Time, statuses []domain.InstanceStatus) ([]*domain.TaskInstance, error) {
	query := sqliteInstanceSelect + ` WHERE assignee_id = ? AND due_date >= ? AND due_date < ?`
	args := []any{
		assigneeID.String(),
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	}

	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY due_date`

	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteInstances(rows)
}

// FindByHouseholdOnDate returns a household's open instances due on the
// given calendar day.
func (r *SQLiteInstanceRepository) FindByHouseholdOnDate(ctx context.Context, householdID uuid.UUID, date time.Time) ([]*domain.TaskInstance, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	query := sqliteInstanceSelect + `
		WHERE household_id = ? AND due_date >= ? AND due_date < ?
		AND status IN ('pending', 'in_progress')
		ORDER BY due_date`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query,
		householdID.String(),
		dayStart.Format(time.RFC3339),
		dayStart.AddDate(0, 0, 1).Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteInstances(rows)
}

// FindOpenDueWithin returns open instances due in [from, to).
func (r *SQLiteInstanceRepository) FindOpenDueWithin(ctx context.Context, from, to time.Time) ([]*domain.TaskInstance, error) {
	query := sqliteInstanceSelect + `
		WHERE due_date >= ? AND due_date < ?
		AND status IN ('pending', 'in_progress')
		ORDER BY due_date`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteInstances(rows)
}

// FindOpenOverdue returns open instances whose due date has passed.
func (r *SQLiteInstanceRepository) FindOpenOverdue(ctx context.Context, asOf time.Time) ([]*domain.TaskInstance, error) {
	query := sqliteInstanceSelect + `
		WHERE due_date < ?
		AND status IN ('pending', 'in_progress')
		ORDER BY due_date`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query,
		asOf.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteInstances(rows)
}

const sqliteInstanceSelect = `
	SELECT id, scheduled_task_id, household_id, assignee_id, title, category,
	       points, due_date, estimated_minutes, status, completed_at,
	       created_at, updated_at
	FROM task_instances`

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanSQLiteInstance(row rowScanner) (*domain.TaskInstance, error) {
	var (
		idStr            string
		scheduledTaskID  sql.NullString
		householdStr     string
		assigneeStr      string
		dueDate          string
		estimatedMinutes int
		status           string
		completedAt      sql.NullString
		createdAt        string
		updatedAt        string
		instance         domain.TaskInstance
	)
	err := row.Scan(
		&idStr, &scheduledTaskID, &householdStr, &assigneeStr,
		&instance.Title, &instance.Category, &instance.Points,
		&dueDate, &estimatedMinutes, &status, &completedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if instance.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if scheduledTaskID.Valid {
		id, err := uuid.Parse(scheduledTaskID.String)
		if err != nil {
			return nil, err
		}
		instance.ScheduledTaskID = &id
	}
	if instance.HouseholdID, err = uuid.Parse(householdStr); err != nil {
		return nil, err
	}
	if instance.AssigneeID, err = uuid.Parse(assigneeStr); err != nil {
		return nil, err
	}
	if instance.DueDate, err = time.Parse(time.RFC3339, dueDate); err != nil {
		return nil, err
	}
	instance.EstimatedDuration = time.Duration(estimatedMinutes) * time.Minute
	instance.Status = domain.InstanceStatus(status)
	if completedAt.Valid {
		at, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, err
		}
		instance.CompletedAt = &at
	}
	if instance.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if instance.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, err
	}
	return &instance, nil
}

func scanSQLiteInstances(rows *sql.Rows) ([]*domain.TaskInstance, error) {
	instances := make([]*domain.TaskInstance, 0)
	for rows.Next() {
		instance, err := scanSQLiteInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

var _ domain.InstanceRepository = (*SQLiteInstanceRepository)(nil)
