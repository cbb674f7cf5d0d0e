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

// SQLiteRuleRepository implements domain.RuleRepository using SQLite.
type SQLiteRuleRepository struct {
	db *sql.DB
}

// NewSQLiteRuleRepository creates a new SQLite rule repository.
func NewSQLiteRuleRepository(db *sql.DB) *SQLiteRuleRepository {
	return &SQLiteRuleRepository{db: db}
}

// Create inserts a notification rule.
func (r *SQLiteRuleRepository) Create(ctx context.Context, rule *domain.Rule) error {
	conditions, actions, constraints, err := marshalRuleParts(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notification_rules (
			id, household_id, name, enabled, trigger_event, trigger_offset_minutes,
			conditions, actions, constraints, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = sharedPersistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		rule.ID.String(), rule.HouseholdID.String(), rule.Name, boolToInt(rule.Enabled),
		string(rule.Trigger.Event), rule.Trigger.OffsetMinutes,
		string(conditions), string(actions), string(constraints),
		rule.CreatedAt.Format(time.RFC3339), rule.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// Update replaces a rule's mutable fields.
func (r *SQLiteRuleRepository) Update(ctx context.Context, rule *domain.Rule) error {
	conditions, actions, constraints, err := marshalRuleParts(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE notification_rules SET
			name = ?, enabled = ?, trigger_event = ?, trigger_offset_minutes = ?,
			conditions = ?, actions = ?, constraints = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := sharedPersistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		rule.Name, boolToInt(rule.Enabled),
		string(rule.Trigger.Event), rule.Trigger.OffsetMinutes,
		string(conditions), string(actions), string(constraints),
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID.String(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// FindByID retrieves a rule by ID.
func (r *SQLiteRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	query := sqliteRuleSelect + ` WHERE id = ?`
	row := sharedPersistence.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, id.String())
	rule, err := scanSQLiteRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

// FindByHousehold retrieves all rules for a household.
func (r *SQLiteRuleRepository) FindByHousehold(ctx context.Context, householdID uuid.UUID) ([]*domain.Rule, error) {
	query := sqliteRuleSelect + ` WHERE household_id = ? ORDER BY created_at`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query, householdID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteRules(rows)
}

// FindEnabledByEvent retrieves enabled rules triggered by the event type.
func (r *SQLiteRuleRepository) FindEnabledByEvent(ctx context.Context, householdID uuid.UUID, event domain.EventType) ([]*domain.Rule, error) {
	query := sqliteRuleSelect + ` WHERE household_id = ? AND enabled = 1 AND trigger_event = ? ORDER BY created_at`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query, householdID.String(), string(event))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteRules(rows)
}

const sqliteRuleSelect = `
	SELECT id, household_id, name, enabled, trigger_event, trigger_offset_minutes,
	       conditions, actions, constraints, created_at, updated_at
	FROM notification_rules`

func scanSQLiteRule(row rowScanner) (*domain.Rule, error) {
	var (
		idStr        string
		householdStr string
		enabled      int
		triggerEvent string
		conditions   string
		actions      string
		constraints  string
		createdAt    string
		updatedAt    string
		rule         domain.Rule
	)
	err := row.Scan(
		&idStr, &householdStr, &rule.Name, &enabled,
		&triggerEvent, &rule.Trigger.OffsetMinutes,
		&conditions, &actions, &constraints,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rule.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if rule.HouseholdID, err = uuid.Parse(householdStr); err != nil {
		return nil, err
	}
	rule.Enabled = enabled != 0
	rule.Trigger.Event = domain.EventType(triggerEvent)
	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actions), &rule.Actions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(constraints), &rule.Constraints); err != nil {
		return nil, err
	}
	if rule.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if rule.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, err
	}
	return &rule, nil
}

func scanSQLiteRules(rows *sql.Rows) ([]*domain.Rule, error) {
	rules := make([]*domain.Rule, 0)
	for rows.Next() {
		rule, err := scanSQLiteRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ domain.RuleRepository = (*SQLiteRuleRepository)(nil)
