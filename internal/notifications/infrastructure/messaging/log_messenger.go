package messaging

import (
	"context"
	"log/slog"

	"github.com/choreminder/choreminder/internal/notifications/domain"
)

// LogMessenger writes deliveries to the structured log instead of an
// external provider. It is the default for local setups without
// provider credentials.
type LogMessenger struct {
	logger *slog.Logger
}

func NewLogMessenger(logger *slog.Logger) *LogMessenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMessenger{logger: logger}
}

func (m *LogMessenger) Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	m.logger.InfoContext(ctx, "delivering notification",
		slog.String("recipient_id", req.RecipientID.String()),
		slog.String("message_type", req.MessageType),
		slog.String("priority", string(req.Priority)),
		slog.String("channel", string(req.PreferredChannel)),
		slog.Bool("bypass_quiet_hours", req.BypassQuietHours),
	)
	return domain.SendResult{Success: true, Channel: req.PreferredChannel}, nil
}

var _ domain.Messenger = (*LogMessenger)(nil)
