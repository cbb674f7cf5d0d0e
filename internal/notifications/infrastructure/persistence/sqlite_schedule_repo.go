package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/choreminder/choreminder/internal/notifications/domain"
	sharedPersistence "github.com/choreminder/choreminder/internal/shared/infrastructure/persistence"
)

// SQLiteScheduleRepository implements domain.ScheduleRepository using SQLite.
type SQLiteScheduleRepository struct {
	db *sql.DB
}

// NewSQLiteScheduleRepository creates a new SQLite schedule repository.
func NewSQLiteScheduleRepository(db *sql.DB) *SQLiteScheduleRepository {
	return &SQLiteScheduleRepository{db: db}
}

// Create inserts a pending schedule.
func (r *SQLiteScheduleRepository) Create(ctx context.Context, schedule *domain.Schedule) error {
	metadata, err := json.Marshal(schedule.Metadata)
	if err != nil {
		return err
	}

	var taskInstanceID sql.NullString
	if schedule.TaskInstanceID != nil {
		taskInstanceID = sql.NullString{String: schedule.TaskInstanceID.String(), Valid: true}
	}
	var sentAt sql.NullString
	if schedule.SentAt != nil {
		sentAt = sql.NullString{String: schedule.SentAt.Format(time.RFC3339), Valid: true}
	}

	query := `
		INSERT INTO notification_schedules (
			id, rule_id, household_id, recipient_id, task_instance_id,
			scheduled_at, attempts, max_attempts, status,
			escalation_level, escalated, metadata, last_error, sent_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = sharedPersistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		schedule.ID.String(), schedule.RuleID.String(), schedule.HouseholdID.String(),
		schedule.RecipientID.String(), taskInstanceID,
		schedule.ScheduledAt.UTC().Format(time.RFC3339), schedule.Attempts, schedule.MaxAttempts,
		string(schedule.Status),
		schedule.EscalationLevel, boolToInt(schedule.Escalated), string(metadata),
		schedule.LastError, sentAt,
		schedule.CreatedAt.Format(time.RFC3339), schedule.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// FindByID retrieves a schedule by ID.
func (r *SQLiteScheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := sqliteScheduleSelect + ` WHERE id = ?`
	row := sharedPersistence.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, id.String())
	schedule, err := scanSQLiteSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, err
	}
	return schedule, nil
}

// FindDue returns pending schedules ready for dispatch, oldest first.
func (r *SQLiteScheduleRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Schedule, error) {
	query := sqliteScheduleSelect + `
		WHERE status = 'pending' AND scheduled_at <= ?
		ORDER BY scheduled_at
		LIMIT ?`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query,
		now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteSchedules(rows)
}

// Claim bumps the stored attempt counter from expectedAttempts while
// the row is still pending. The compare-and-swap makes the claim
// exclusive: of two passes holding the same snapshot, only one sees a
// row affected.
func (r *SQLiteScheduleRepository) Claim(ctx context.Context, id uuid.UUID, expectedAttempts int, now time.Time) (bool, error) {
	query := `
		UPDATE notification_schedules
		SET attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = 'pending' AND attempts = ?
	`
	result, err := sharedPersistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		now.UTC().Format(time.RFC3339), id.String(), expectedAttempts,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Update persists the schedule's state conditioned on the stored row
// still being pending; returns false when the row was already terminal.
func (r *SQLiteScheduleRepository) Update(ctx context.Context, schedule *domain.Schedule) (bool, error) {
	metadata, err := json.Marshal(schedule.Metadata)
	if err != nil {
		return false, err
	}

	var sentAt sql.NullString
	if schedule.SentAt != nil {
		sentAt = sql.NullString{String: schedule.SentAt.Format(time.RFC3339), Valid: true}
	}

	query := `
		UPDATE notification_schedules SET
			scheduled_at = ?, attempts = ?, status = ?,
			escalation_level = ?, escalated = ?, metadata = ?,
			last_error = ?, sent_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`
	result, err := sharedPersistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		schedule.ScheduledAt.UTC().Format(time.RFC3339), schedule.Attempts, string(schedule.Status),
		schedule.EscalationLevel, boolToInt(schedule.Escalated), string(metadata),
		schedule.LastError, sentAt, schedule.UpdatedAt.Format(time.RFC3339),
		schedule.ID.String(),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListFailed returns failed schedules for a household, newest first.
func (r *SQLiteScheduleRepository) ListFailed(ctx context.Context, householdID uuid.UUID, limit int) ([]*domain.Schedule, error) {
	query := sqliteScheduleSelect + `
		WHERE household_id = ? AND status = 'failed'
		ORDER BY updated_at DESC
		LIMIT ?`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query, householdID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteSchedules(rows)
}

// ListEscalated returns schedules whose escalation fan-out fired, newest first.
func (r *SQLiteScheduleRepository) ListEscalated(ctx context.Context, householdID uuid.UUID, limit int) ([]*domain.Schedule, error) {
	query := sqliteScheduleSelect + `
		WHERE household_id = ? AND escalated = 1
		ORDER BY updated_at DESC
		LIMIT ?`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query, householdID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteSchedules(rows)
}

const sqliteScheduleSelect = `
	SELECT id, rule_id, household_id, recipient_id, task_instance_id,
	       scheduled_at, attempts, max_attempts, status,
	       escalation_level, escalated, metadata, last_error, sent_at,
	       created_at, updated_at
	FROM notification_schedules`

func scanSQLiteSchedule(row rowScanner) (*domain.Schedule, error) {
	var (
		idStr          string
		ruleStr        string
		householdStr   string
		recipientStr   string
		taskInstanceID sql.NullString
		scheduledAt    string
		status         string
		escalated      int
		metadata       string
		sentAt         sql.NullString
		createdAt      string
		updatedAt      string
		schedule       domain.Schedule
	)
	err := row.Scan(
		&idStr, &ruleStr, &householdStr, &recipientStr, &taskInstanceID,
		&scheduledAt, &schedule.Attempts, &schedule.MaxAttempts, &status,
		&schedule.EscalationLevel, &escalated, &metadata,
		&schedule.LastError, &sentAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if schedule.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if schedule.RuleID, err = uuid.Parse(ruleStr); err != nil {
		return nil, err
	}
	if schedule.HouseholdID, err = uuid.Parse(householdStr); err != nil {
		return nil, err
	}
	if schedule.RecipientID, err = uuid.Parse(recipientStr); err != nil {
		return nil, err
	}
	if taskInstanceID.Valid {
		id, err := uuid.Parse(taskInstanceID.String)
		if err != nil {
			return nil, err
		}
		schedule.TaskInstanceID = &id
	}
	if schedule.ScheduledAt, err = time.Parse(time.RFC3339, scheduledAt); err != nil {
		return nil, err
	}
	schedule.Status = domain.ScheduleStatus(status)
	schedule.Escalated = escalated != 0
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &schedule.Metadata); err != nil {
			return nil, err
		}
	}
	if sentAt.Valid {
		at, err := time.Parse(time.RFC3339, sentAt.String)
		if err != nil {
			return nil, err
		}
		schedule.SentAt = &at
	}
	if schedule.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if schedule.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, err
	}
	return &schedule, nil
}

func scanSQLiteSchedules(rows *sql.Rows) ([]*domain.Schedule, error) {
	schedules := make([]*domain.Schedule, 0)
	for rows.Next() {
		schedule, err := scanSQLiteSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

var _ domain.ScheduleRepository = (*SQLiteScheduleRepository)(nil)
