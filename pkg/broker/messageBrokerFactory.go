package broker

import (
	"context"
	"fmt"

	"github.com/zoff-tech/event-pipeline/pkg/config"
)

// NewPublisher creates the configured broker publisher.
func NewPublisher(ctx context.Context, cfg *config.BrokerSettings) (Publisher, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMqPublisher(ctx, cfg)
	case "pubsub":
		return NewPubSubPublisher(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", cfg.Type)
	}
}

// NewDeadLetterSource creates the configured dead-letter source.
func NewDeadLetterSource(ctx context.Context, cfg *config.BrokerSettings) (DeadLetterSource, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMqDeadLetterSource(ctx, cfg)
	case "pubsub":
		return NewPubSubDeadLetterSource(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", cfg.Type)
	}
}
