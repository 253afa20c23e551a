package broker

import (
	"context"
	"fmt"
	"strings"

	vkit "cloud.google.com/go/pubsub/apiv1"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/zoff-tech/event-pipeline/pkg/config"
	"google.golang.org/api/option"

	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"
)

// PubSubDeadLetterCreator defines a function type for creating Pub/Sub
// dead-letter sources.
type PubSubDeadLetterCreator func(ctx context.Context, settings *config.BrokerSettings, opts ...option.ClientOption) (DeadLetterSource, error)

// NewPubSubDeadLetterSource is the default implementation of
// PubSubDeadLetterCreator. It uses the low-level subscriber client: the
// streaming Receive API hides ack handles, and an operator replay flow
// needs to hold them across requests.
var NewPubSubDeadLetterSource PubSubDeadLetterCreator = func(ctx context.Context, settings *config.BrokerSettings, opts ...option.ClientOption) (DeadLetterSource, error) {
	client, err := vkit.NewSubscriberClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &pubSubDeadLetterSource{
		client:       client,
		subscription: subscriptionPath(settings.ProjectID, settings.DeadLetterSubscription),
	}, nil
}

type pubSubDeadLetterSource struct {
	client       *vkit.SubscriberClient
	subscription string
}

func (s *pubSubDeadLetterSource) Pull(ctx context.Context, limit int) ([]DeadLetter, error) {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "PullDeadLetters",
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("pubsub"),
			semconv.MessagingDestinationKey.String(s.subscription),
		),
	)
	defer span.End()

	resp, err := s.client.Pull(ctx, &pubsubpb.PullRequest{
		Subscription: s.subscription,
		MaxMessages:  int32(limit),
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	letters := make([]DeadLetter, 0, len(resp.ReceivedMessages))
	for _, rm := range resp.ReceivedMessages {
		letter := DeadLetter{
			AckID:      rm.AckId,
			MessageID:  rm.Message.GetMessageId(),
			Attributes: rm.Message.GetAttributes(),
			Data:       rm.Message.GetData(),
		}
		if pt := rm.Message.GetPublishTime(); pt != nil {
			letter.PublishTime = pt.AsTime()
		}
		letters = append(letters, letter)
	}
	return letters, nil
}

func (s *pubSubDeadLetterSource) Ack(ctx context.Context, ackID string) error {
	return s.client.Acknowledge(ctx, &pubsubpb.AcknowledgeRequest{
		Subscription: s.subscription,
		AckIds:       []string{ackID},
	})
}

func (s *pubSubDeadLetterSource) Close() error {
	return s.client.Close()
}

func subscriptionPath(projectID, subscription string) string {
	if strings.HasPrefix(subscription, "projects/") {
		return subscription
	}
	return fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subscription)
}
