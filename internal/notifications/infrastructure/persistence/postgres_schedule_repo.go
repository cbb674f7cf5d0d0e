package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choreminder/choreminder/internal/notifications/domain"
	sharedPersistence "github.com/choreminder/choreminder/internal/shared/infrastructure/persistence"
)

// PostgresScheduleRepository implements domain.ScheduleRepository using PostgreSQL.
type PostgresScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresScheduleRepository creates a new PostgreSQL schedule repository.
func NewPostgresScheduleRepository(pool *pgxpool.Pool) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{pool: pool}
}

// Create inserts a pending schedule.
func (r *PostgresScheduleRepository) Create(ctx context.Context, schedule *domain.Schedule) error {
	metadata, err := json.Marshal(schedule.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notification_schedules (
			id, rule_id, household_id, recipient_id, task_instance_id,
			scheduled_at, attempts, max_attempts, status,
			escalation_level, escalated, metadata, last_error, sent_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		schedule.ID, schedule.RuleID, schedule.HouseholdID, schedule.RecipientID,
		schedule.TaskInstanceID,
		schedule.ScheduledAt, schedule.Attempts, schedule.MaxAttempts, string(schedule.Status),
		schedule.EscalationLevel, schedule.Escalated, metadata,
		schedule.LastError, schedule.SentAt,
		schedule.CreatedAt, schedule.UpdatedAt,
	)
	return err
}

// FindByID retrieves a schedule by ID.
func (r *PostgresScheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := scheduleSelect + ` WHERE id = $1`
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id)
	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, err
	}
	return schedule, nil
}

// FindDue returns pending schedules ready for dispatch, oldest first.
func (r *PostgresScheduleRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Schedule, error) {
	query := scheduleSelect + `
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at
		LIMIT $2`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// Claim bumps the stored attempt counter from expectedAttempts while
// the row is still pending. The compare-and-swap makes the claim
// exclusive: of two workers holding the same snapshot, only one sees a
// row affected.
func (r *PostgresScheduleRepository) Claim(ctx context.Context, id uuid.UUID, expectedAttempts int, now time.Time) (bool, error) {
	query := `
		UPDATE notification_schedules
		SET attempts = attempts + 1, updated_at = $3
		WHERE id = $1 AND status = 'pending' AND attempts = $2
	`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query, id, expectedAttempts, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Update persists the schedule's state conditioned on the stored row
// still being pending. A false return means another pass already moved
// the row to a terminal status.
func (r *PostgresScheduleRepository) Update(ctx context.Context, schedule *domain.Schedule) (bool, error) {
	metadata, err := json.Marshal(schedule.Metadata)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE notification_schedules SET
			scheduled_at = $2, attempts = $3, status = $4,
			escalation_level = $5, escalated = $6, metadata = $7,
			last_error = $8, sent_at = $9, updated_at = $10
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		schedule.ID,
		schedule.ScheduledAt, schedule.Attempts, string(schedule.Status),
		schedule.EscalationLevel, schedule.Escalated, metadata,
		schedule.LastError, schedule.SentAt, schedule.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListFailed returns failed schedules for a household, newest first.
func (r *PostgresScheduleRepository) ListFailed(ctx context.Context, householdID uuid.UUID, limit int) ([]*domain.Schedule, error) {
	query := scheduleSelect + `
		WHERE household_id = $1 AND status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $2`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, householdID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// ListEscalated returns schedules whose escalation fan-out fired, newest first.
func (r *PostgresScheduleRepository) ListEscalated(ctx context.Context, householdID uuid.UUID, limit int) ([]*domain.Schedule, error) {
	query := scheduleSelect + `
		WHERE household_id = $1 AND escalated = TRUE
		ORDER BY updated_at DESC
		LIMIT $2`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, householdID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

const scheduleSelect = `
	SELECT id, rule_id, household_id, recipient_id, task_instance_id,
	       scheduled_at, attempts, max_attempts, status,
	       escalation_level, escalated, metadata, last_error, sent_at,
	       created_at, updated_at
	FROM notification_schedules`

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var (
		schedule domain.Schedule
		status   string
		metadata []byte
	)
	err := row.Scan(
		&schedule.ID, &schedule.RuleID, &schedule.HouseholdID, &schedule.RecipientID,
		&schedule.TaskInstanceID,
		&schedule.ScheduledAt, &schedule.Attempts, &schedule.MaxAttempts, &status,
		&schedule.EscalationLevel, &schedule.Escalated, &metadata,
		&schedule.LastError, &schedule.SentAt,
		&schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	schedule.Status = domain.ScheduleStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &schedule.Metadata); err != nil {
			return nil, err
		}
	}
	return &schedule, nil
}

func scanSchedules(rows pgx.Rows) ([]*domain.Schedule, error) {
	schedules := make([]*domain.Schedule, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

var _ domain.ScheduleRepository = (*PostgresScheduleRepository)(nil)
