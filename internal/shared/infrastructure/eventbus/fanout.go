package eventbus

import (
	"context"
	"errors"
)

// FanoutPublisher publishes every event to several publishers, typically
// RabbitMQ for external consumers plus the in-process bus for local ones.
type FanoutPublisher struct {
	publishers []Publisher
}

// NewFanoutPublisher creates a publisher that fans out to all targets.
func NewFanoutPublisher(publishers ...Publisher) *FanoutPublisher {
	return &FanoutPublisher{publishers: publishers}
}

// Publish delivers to every target, joining any errors.
func (p *FanoutPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	var errs []error
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, routingKey, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every target publisher.
func (p *FanoutPublisher) Close() error {
	var errs []error
	for _, pub := range p.publishers {
		if err := pub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
