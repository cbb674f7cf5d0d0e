package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/choreminder/choreminder/internal/notifications/domain"
)

// ErrProviderUnavailable is returned while the breaker is open and
// deliveries are being shed. The dispatcher treats it like any other
// send failure, so the schedule is retried after the provider recovers.
var ErrProviderUnavailable = errors.New("messaging provider unavailable")

// BreakerConfig tunes when the circuit trips and how long it stays open.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the circuit.
	MaxFailures uint32

	// OpenDuration is how long the circuit stays open before probing.
	OpenDuration time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:  5,
		OpenDuration: 60 * time.Second,
	}
}

// BreakerMessenger wraps a Messenger with a circuit breaker so a failing
// provider sheds load fast instead of timing out every schedule in a sweep.
type BreakerMessenger struct {
	inner   domain.Messenger
	breaker *gobreaker.CircuitBreaker[domain.SendResult]
}

func NewBreakerMessenger(inner domain.Messenger, config BreakerConfig, logger *slog.Logger) *BreakerMessenger {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:    "messenger",
		Timeout: config.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &BreakerMessenger{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[domain.SendResult](settings),
	}
}

// errDeliveryFailed makes provider-reported failures count against the
// breaker without changing what the caller sees.
var errDeliveryFailed = errors.New("delivery failed")

func (m *BreakerMessenger) Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	var sendErr error
	result, err := m.breaker.Execute(func() (domain.SendResult, error) {
		res, err := m.inner.Send(ctx, req)
		if err != nil {
			sendErr = err
			return res, err
		}
		if !res.Success {
			return res, errDeliveryFailed
		}
		return res, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return domain.SendResult{}, ErrProviderUnavailable
	case errors.Is(err, errDeliveryFailed):
		return result, nil
	default:
		return result, sendErr
	}
}

// State reports the current breaker state for health reporting.
func (m *BreakerMessenger) State() string {
	return m.breaker.State().String()
}

var _ domain.Messenger = (*BreakerMessenger)(nil)
