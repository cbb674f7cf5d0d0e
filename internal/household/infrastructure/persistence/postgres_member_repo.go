// Package persistence provides PostgreSQL and SQLite implementations of
// the household repositories.
package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choreminder/choreminder/internal/household/domain"
	sharedPersistence "github.com/choreminder/choreminder/internal/shared/infrastructure/persistence"
)

// PostgresMemberRepository implements domain.MemberRepository using PostgreSQL.
type PostgresMemberRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresMemberRepository creates a new PostgreSQL member repository.
func NewPostgresMemberRepository(pool *pgxpool.Pool) *PostgresMemberRepository {
	return &PostgresMemberRepository{pool: pool}
}

// Create inserts a household member.
func (r *PostgresMemberRepository) Create(ctx context.Context, member *domain.Member) error {
	query := `
		INSERT INTO household_members (
			id, household_id, name, role, quiet_start, quiet_end, max_per_hour,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		member.ID, member.HouseholdID, member.Name, string(member.Role),
		member.QuietStart, member.QuietEnd, member.MaxPerHour,
		member.CreatedAt, member.UpdatedAt,
	)
	return err
}

// FindByID retrieves a member by ID.
func (r *PostgresMemberRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	query := memberSelect + ` WHERE id = $1`
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id)
	member, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

// FindByHousehold retrieves all members of a household.
func (r *PostgresMemberRepository) FindByHousehold(ctx context.Context, householdID uuid.UUID) ([]*domain.Member, error) {
	query := memberSelect + ` WHERE household_id = $1 ORDER BY created_at`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembers(rows)
}

// FindAdmins retrieves a household's admin members, the escalation targets.
func (r *PostgresMemberRepository) FindAdmins(ctx context.Context, householdID uuid.UUID) ([]*domain.Member, error) {
	query := memberSelect + ` WHERE household_id = $1 AND role = 'admin' ORDER BY created_at`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembers(rows)
}

const memberSelect = `
	SELECT id, household_id, name, role, quiet_start, quiet_end, max_per_hour,
	       created_at, updated_at
	FROM household_members`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*domain.Member, error) {
	var (
		member domain.Member
		role   string
	)
	err := row.Scan(
		&member.ID, &member.HouseholdID, &member.Name, &role,
		&member.QuietStart, &member.QuietEnd, &member.MaxPerHour,
		&member.CreatedAt, &member.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	member.Role = domain.Role(role)
	return &member, nil
}

func scanMembers(rows pgx.Rows) ([]*domain.Member, error) {
	members := make([]*domain.Member, 0)
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

var _ domain.MemberRepository = (*PostgresMemberRepository)(nil)
