package domain

import (
	"context"

	"github.com/google/uuid"
)

// MemberRepository gives access to household membership.
type MemberRepository interface {
	Create(ctx context.Context, member *Member) error
	FindByID(ctx context.Context, id uuid.UUID) (*Member, error)
	FindByHousehold(ctx context.Context, householdID uuid.UUID) ([]*Member, error)
	FindAdmins(ctx context.Context, householdID uuid.UUID) ([]*Member, error)
}
