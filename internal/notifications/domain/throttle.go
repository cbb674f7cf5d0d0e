package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ThrottleStore tracks per-recipient hourly send counters and per
// rule/recipient cooldown stamps. Counters are hour buckets; Reserve and
// Release must be atomic relative to other schedules for the same
// recipient within a sweep pass.
type ThrottleStore interface {
	// CountHour returns sends recorded for the recipient in the hour
	// containing at.
	CountHour(ctx context.Context, recipientID uuid.UUID, at time.Time) (int, error)

	// Reserve takes one delivery slot in the recipient's hour bucket,
	// returning false when max slots are already taken.
	Reserve(ctx context.Context, recipientID uuid.UUID, at time.Time, max int) (bool, error)

	// Release returns a slot after a failed send so a retry is not
	// charged twice.
	Release(ctx context.Context, recipientID uuid.UUID, at time.Time) error

	// LastFire returns when the rule last delivered to the recipient.
	LastFire(ctx context.Context, ruleID, recipientID uuid.UUID) (time.Time, bool, error)

	// RecordFire stamps a successful delivery for cooldown tracking.
	RecordFire(ctx context.Context, ruleID, recipientID uuid.UUID, at time.Time) error
}
