package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/choreminder/choreminder/internal/household/domain"
	sharedPersistence "github.com/choreminder/choreminder/internal/shared/infrastructure/persistence"
)

// SQLiteMemberRepository implements domain.MemberRepository using SQLite.
type SQLiteMemberRepository struct {
	db *sql.DB
}

// NewSQLiteMemberRepository creates a new SQLite member repository.
func NewSQLiteMemberRepository(db *sql.DB) *SQLiteMemberRepository {
	return &SQLiteMemberRepository{db: db}
}

// Create inserts a household member.
func (r *SQLiteMemberRepository) Create(ctx context.Context, member *domain.Member) error {
	query := `
		INSERT INTO household_members (
			id, household_id, name, role, quiet_start, quiet_end, max_per_hour,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := sharedPersistence.SQLiteDB(ctx, r.db).ExecContext(ctx, query,
		member.ID.String(), member.HouseholdID.String(), member.Name, string(member.Role),
		member.QuietStart, member.QuietEnd, member.MaxPerHour,
		member.CreatedAt.Format(time.RFC3339), member.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// FindByID retrieves a member by ID.
func (r *SQLiteMemberRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	query := sqliteMemberSelect + ` WHERE id = ?`
	row := sharedPersistence.SQLiteDB(ctx, r.db).QueryRowContext(ctx, query, id.String())
	member, err := scanSQLiteMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

// FindByHousehold retrieves all members of a household.
func (r *SQLiteMemberRepository) FindByHousehold(ctx context.Context, householdID uuid.UUID) ([]*domain.Member, error) {
	query := sqliteMemberSelect + ` WHERE household_id = ? ORDER BY created_at`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query, householdID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteMembers(rows)
}

// FindAdmins retrieves a household's admin members.
func (r *SQLiteMemberRepository) FindAdmins(ctx context.Context, householdID uuid.UUID) ([]*domain.Member, error) {
	query := sqliteMemberSelect + ` WHERE household_id = ? AND role = 'admin' ORDER BY created_at`
	rows, err := sharedPersistence.SQLiteDB(ctx, r.db).QueryContext(ctx, query, householdID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteMembers(rows)
}

const sqliteMemberSelect = `
	SELECT id, household_id, name, role, quiet_start, quiet_end, max_per_hour,
	       created_at, updated_at
	FROM household_members`

func scanSQLiteMember(row rowScanner) (*domain.Member, error) {
	var (
		idStr        string
		householdStr string
		role         string
		createdAt    string
		updatedAt    string
		member       domain.Member
	)
	err := row.Scan(
		&idStr, &householdStr, &member.Name, &role,
		&member.QuietStart, &member.QuietEnd, &member.MaxPerHour,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if member.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if member.HouseholdID, err = uuid.Parse(householdStr); err != nil {
		return nil, err
	}
	member.Role = domain.Role(role)
	if member.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if member.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, err
	}
	return &member, nil
}

func scanSQLiteMembers(rows *sql.Rows) ([]*domain.Member, error) {
	members := make([]*domain.Member, 0)
	for rows.Next() {
		member, err := scanSQLiteMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

var _ domain.MemberRepository = (*SQLiteMemberRepository)(nil)
