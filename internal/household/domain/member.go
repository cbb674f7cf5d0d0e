// Package domain contains the household membership model.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors for household members.
var (
	ErrMemberNotFound  = errors.New("household member not found")
	ErrMemberEmptyName = errors.New("member name cannot be empty")
	ErrInvalidRole     = errors.New("invalid member role")
)

// Role distinguishes household admins (parents) from regular members (children).
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// IsValid checks if the role is valid.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// Member represents one person in a household.
type Member struct {
	ID          uuid.UUID
	HouseholdID uuid.UUID
	Name        string
	Role        Role

	// QuietStart/QuietEnd bound the member's quiet hours as "HH:MM".
	// Equal values disable quiet hours.
	QuietStart string
	QuietEnd   string

	// MaxPerHour caps notification deliveries to this member. Zero means
	// the engine default applies.
	MaxPerHour int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewMember creates a new household member.
func NewMember(householdID uuid.UUID, name string, role Role) (*Member, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrMemberEmptyName
	}
	if !role.IsValid() {
		return nil, ErrInvalidRole
	}

	now := time.Now().UTC()
	return &Member{
		ID:          uuid.New(),
		HouseholdID: householdID,
		Name:        name,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsAdmin reports whether the member can administer the household.
func (m *Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// SetQuietHours sets the member's quiet-hours window.
func (m *Member) SetQuietHours(start, end string) error {
	if _, err := parseClock(start); err != nil {
		return err
	}
	if _, err := parseClock(end); err != nil {
		return err
	}
	m.QuietStart = start
	m.QuietEnd = end
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// QuietHours returns the member's quiet-hours window, if configured.
func (m *Member) QuietHours() (QuietWindow, bool) {
	if m.QuietStart == "" || m.QuietEnd == "" || m.QuietStart == m.QuietEnd {
		return QuietWindow{}, false
	}
	w, err := NewQuietWindow(m.QuietStart, m.QuietEnd)
	if err != nil {
		return QuietWindow{}, false
	}
	return w, true
}
