package observability

import (
	"context"

	"github.com/google/uuid"
)

// CorrelationIDKey is the log attribute key for correlation IDs.
const CorrelationIDKey = "correlation_id"

type correlationIDCtxKey struct{}

// WithCorrelationID stores a correlation ID in the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDCtxKey{}, id)
}

// NewCorrelationID generates a fresh correlation ID and stores it in the context.
func NewCorrelationID(ctx context.Context) context.Context {
	return WithCorrelationID(ctx, uuid.NewString())
}

// CorrelationIDFromContext extracts the correlation ID from the context,
// returning "" when none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDCtxKey{}).(string); ok {
		return id
	}
	return ""
}
