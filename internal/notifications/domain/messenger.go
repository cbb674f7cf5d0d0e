package domain

import (
	"context"

	"github.com/google/uuid"
)

// SendRequest is one delivery handed to the messaging collaborator. The
// collaborator owns protocol-level delivery and any cross-channel
// fallback beyond the preferred channel.
type SendRequest struct {
	RecipientID      uuid.UUID
	MessageType      string
	Priority         Priority
	PreferredChannel Channel
	BypassQuietHours bool
	Context          map[string]any
}

// SendResult reports the outcome of one delivery attempt.
type SendResult struct {
	Success bool
	Channel Channel
	Error   string
}

// Messenger abstracts the email/SMS/chat providers behind a single call.
type Messenger interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
