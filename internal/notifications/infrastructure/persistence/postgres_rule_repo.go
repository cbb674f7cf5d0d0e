// Package persistence provides PostgreSQL and SQLite implementations of
// the notification repositories.
package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choreminder/choreminder/internal/notifications/domain"
	sharedPersistence "github.com/choreminder/choreminder/internal/shared/infrastructure/persistence"
)

// PostgresRuleRepository implements domain.RuleRepository using PostgreSQL.
type PostgresRuleRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRuleRepository creates a new PostgreSQL rule repository.
func NewPostgresRuleRepository(pool *pgxpool.Pool) *PostgresRuleRepository {
	return &PostgresRuleRepository{pool: pool}
}

// Create inserts a notification rule. The trigger event is stored in its
// own column so FindEnabledByEvent stays an indexed lookup.
func (r *PostgresRuleRepository) Create(ctx context.Context, rule *domain.Rule) error {
	conditions, actions, constraints, err := marshalRuleParts(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notification_rules (
			id, household_id, name, enabled, trigger_event, trigger_offset_minutes,
			conditions, actions, constraints, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		rule.ID, rule.HouseholdID, rule.Name, rule.Enabled,
		string(rule.Trigger.Event), rule.Trigger.OffsetMinutes,
		conditions, actions, constraints,
		rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// Update replaces a rule's mutable fields.
func (r *PostgresRuleRepository) Update(ctx context.Context, rule *domain.Rule) error {
	conditions, actions, constraints, err := marshalRuleParts(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE notification_rules SET
			name = $2, enabled = $3, trigger_event = $4, trigger_offset_minutes = $5,
			conditions = $6, actions = $7, constraints = $8, updated_at = $9
		WHERE id = $1
	`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		rule.ID, rule.Name, rule.Enabled,
		string(rule.Trigger.Event), rule.Trigger.OffsetMinutes,
		conditions, actions, constraints, rule.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// FindByID retrieves a rule by ID.
func (r *PostgresRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	query := ruleSelect + ` WHERE id = $1`
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

// FindByHousehold retrieves all rules for a household.
func (r *PostgresRuleRepository) FindByHousehold(ctx context.Context, householdID uuid.UUID) ([]*domain.Rule, error) {
	query := ruleSelect + ` WHERE household_id = $1 ORDER BY created_at`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// FindEnabledByEvent retrieves enabled rules triggered by the event type.
func (r *PostgresRuleRepository) FindEnabledByEvent(ctx context.Context, householdID uuid.UUID, event domain.EventType) ([]*domain.Rule, error) {
	query := ruleSelect + ` WHERE household_id = $1 AND enabled = TRUE AND trigger_event = $2 ORDER BY created_at`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, householdID, string(event))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

const ruleSelect = `
	SELECT id, household_id, name, enabled, trigger_event, trigger_offset_minutes,
	       conditions, actions, constraints, created_at, updated_at
	FROM notification_rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func marshalRuleParts(rule *domain.Rule) (conditions, actions, constraints []byte, err error) {
	if conditions, err = json.Marshal(rule.Conditions); err != nil {
		return nil, nil, nil, err
	}
	if actions, err = json.Marshal(rule.Actions); err != nil {
		return nil, nil, nil, err
	}
	if constraints, err = json.Marshal(rule.Constraints); err != nil {
		return nil, nil, nil, err
	}
	return conditions, actions, constraints, nil
}

func scanRule(row rowScanner) (*domain.Rule, error) {
	var (
		rule         domain.Rule
		triggerEvent string
		conditions   []byte
		actions      []byte
		constraints  []byte
	)
	err := row.Scan(
		&rule.ID, &rule.HouseholdID, &rule.Name, &rule.Enabled,
		&triggerEvent, &rule.Trigger.OffsetMinutes,
		&conditions, &actions, &constraints,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Trigger.Event = domain.EventType(triggerEvent)
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(constraints, &rule.Constraints); err != nil {
		return nil, err
	}
	return &rule, nil
}

func scanRules(rows pgx.Rows) ([]*domain.Rule, error) {
	rules := make([]*domain.Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

var _ domain.RuleRepository = (*PostgresRuleRepository)(nil)
