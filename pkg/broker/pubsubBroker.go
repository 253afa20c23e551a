package broker

import (
	"context"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/zoff-tech/event-pipeline/pkg/config"
	"google.golang.org/api/option"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"
)

// PubSubPublisherCreator defines a function type for creating Pub/Sub publishers.
type PubSubPublisherCreator func(ctx context.Context, settings *config.BrokerSettings, opts ...option.ClientOption) (Publisher, error)

// NewPubSubPublisher is the default implementation of PubSubPublisherCreator.
var NewPubSubPublisher PubSubPublisherCreator = func(ctx context.Context, settings *config.BrokerSettings, opts ...option.ClientOption) (Publisher, error) {
	client, err := pubsub.NewClient(ctx, settings.ProjectID, opts...)
	if err != nil {
		return nil, err
	}
	return &pubSubPublisher{client: client, topics: map[string]*pubsub.Topic{}}, nil
}

type pubSubPublisher struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func (p *pubSubPublisher) Publish(ctx context.Context, topic string, data []byte, attributes map[string]string) (string, error) {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("pubsub"),
			semconv.MessagingDestinationKindKey.String("topic"),
			semconv.MessagingDestinationKey.String(topic),
		),
	)
	defer span.End()

	// Inject the trace context into the message attributes
	propagator := otel.GetTextMapPropagator()
	attrs := make(map[string]string)
	propagator.Inject(ctx, propagation.MapCarrier(attrs))
	for key, value := range attributes {
		attrs[key] = value
	}

	message := &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	}

	res := p.topic(topic).Publish(ctx, message)
	id, err := res.Get(ctx) // wait for server ack
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	span.SetAttributes(
		attribute.Int("messaging.message_payload_size_bytes", len(data)),
	)

	return id, nil
}

// topic returns a long-lived Topic handle so the client-side batching
// goroutines are reused across publishes instead of recreated per call.
func (p *pubSubPublisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

func (p *pubSubPublisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}
