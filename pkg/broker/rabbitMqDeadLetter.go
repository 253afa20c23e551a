package broker

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/streadway/amqp"
	"github.com/zoff-tech/event-pipeline/pkg/config"
)

// RabbitMQDeadLetterCreator defines a function type for creating RabbitMQ
// dead-letter sources.
type RabbitMQDeadLetterCreator func(ctx context.Context, settings *config.BrokerSettings) (DeadLetterSource, error)

var NewRabbitMqDeadLetterSource RabbitMQDeadLetterCreator = func(ctx context.Context, settings *config.BrokerSettings) (DeadLetterSource, error) {
	conn, err := newConnection(settings)
	if err != nil {
		return nil, err
	}
	// Delivery tags are scoped to the channel they were read on, so pulls
	// and acks must share this one channel.
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return &rabbitMqDeadLetterSource{
		connection: conn,
		channel:    ch,
		queue:      settings.DeadLetterSubscription,
	}, nil
}

type rabbitMqDeadLetterSource struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	queue      string
	mu         sync.Mutex
}

func (s *rabbitMqDeadLetterSource) Pull(ctx context.Context, limit int) ([]DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var letters []DeadLetter
	for i := 0; i < limit; i++ {
		delivery, ok, err := s.channel.Get(s.queue, false)
		if err != nil {
			return nil, fmt.Errorf("failed to read dead-letter queue %s: %w", s.queue, err)
		}
		if !ok {
			break
		}

		attributes := make(map[string]string, len(delivery.Headers))
		for k, v := range delivery.Headers {
			if str, ok := v.(string); ok {
				attributes[k] = str
			}
		}

		letters = append(letters, DeadLetter{
			AckID:       strconv.FormatUint(delivery.DeliveryTag, 10),
			MessageID:   delivery.MessageId,
			PublishTime: delivery.Timestamp,
			Attributes:  attributes,
			Data:        delivery.Body,
		})
	}
	return letters, nil
}

func (s *rabbitMqDeadLetterSource) Ack(ctx context.Context, ackID string) error {
	tag, err := strconv.ParseUint(ackID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid ack id %q: %w", ackID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel.Ack(tag, false)
}

func (s *rabbitMqDeadLetterSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.channel.Close(); err != nil {
		return err
	}
	return s.connection.Close()
}
