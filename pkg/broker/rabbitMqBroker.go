package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"maps"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/event-pipeline/pkg/config"
)

type RabbitMQPublisherCreator func(ctx context.Context, settings *config.BrokerSettings) (Publisher, error)

var NewRabbitMqPublisher RabbitMQPublisherCreator = func(ctx context.Context, settings *config.BrokerSettings) (Publisher, error) {
	if settings.PoolSize <= 0 {
		return nil, errors.New("poolSize must be greater than 0")
	}

	conn, err := newConnection(settings)
	if err != nil {
		return nil, err
	}

	publisher := &rabbitMqPublisher{
		connection:      conn,
		channelPool:     make(chan *pooledChannel, settings.PoolSize),
		settings:        settings,
		reconnectTicker: time.NewTicker(5 * time.Second), // Retry every 5 seconds
		stopReconnect:   make(chan struct{}),
	}

	// Initialize the connection and channel pool
	if err := publisher.connectAndInitialize(); err != nil {
		return nil, err
	}

	// Start connection recovery in a separate goroutine
	go publisher.recoverConnection()

	return publisher, nil
}

type rabbitMqPublisher struct {
	connection      *amqp.Connection
	channelPool     chan *pooledChannel
	mu              sync.Mutex
	settings        *config.BrokerSettings
	reconnectTicker *time.Ticker
	stopReconnect   chan struct{}
}

func (r *rabbitMqPublisher) Publish(ctx context.Context, topic string, data []byte, attributes map[string]string) (string, error) {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("rabbitmq"),
			semconv.MessagingDestinationKindKey.String("exchange"),
			semconv.MessagingDestinationKey.String(r.settings.Exchange),
			semconv.MessagingRabbitmqRoutingKeyKey.String(topic),
		),
	)
	defer span.End()

	// Inject the trace context into the message headers
	propagator := otel.GetTextMapPropagator()
	headers := make(map[string]string)
	propagator.Inject(ctx, propagation.MapCarrier(headers))
	maps.Copy(headers, attributes)

	// Convert headers to amqp.Table
	amqpHeaders := make(amqp.Table)
	for k, v := range headers {
		amqpHeaders[k] = v
	}

	// Get a channel from the pool
	pooledChan, err := r.getChannel()
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	defer r.releaseChannel(pooledChan)

	// ExchangeDeclare is idempotent and has no effect if the exchange is already in place
	err = pooledChan.channel.ExchangeDeclare(
		r.settings.Exchange, // name of the exchange
		"topic",             // type of the exchange
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare exchange: %w", err)
	}

	// AMQP does not assign message ids server-side; generate one so callers
	// always get a stable delivery identifier back.
	messageID := uuid.NewString()

	err = pooledChan.channel.Publish(
		r.settings.Exchange, topic, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   messageID,
			Timestamp:   time.Now(),
			Body:        data,
			Headers:     amqpHeaders,
		},
	)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	span.SetAttributes(
		attribute.Int("messaging.message_payload_size_bytes", len(data)),
	)

	return messageID, nil
}

func (r *rabbitMqPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Stop the connection recovery goroutine
	close(r.stopReconnect)
	r.reconnectTicker.Stop()

	// Close all channels in the pool
	close(r.channelPool)
	for pooledChan := range r.channelPool {
		pooledChan.channel.Close()
	}

	// Close the connection
	if r.connection != nil {
		return r.connection.Close()
	}
	return nil
}
