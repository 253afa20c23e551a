package dlq

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/zoff-tech/event-pipeline/pkg/broker"
	"github.com/zoff-tech/event-pipeline/pkg/envelope"
)

// Controller lets an operator inspect dead-lettered messages and put them
// back into the main flow. Replay preserves the original eventId, so a
// message that already made it into the store before dead-lettering becomes
// a downstream no-op instead of a second record.
type Controller struct {
	source    broker.DeadLetterSource
	publisher broker.Publisher
	topic     string
}

func NewController(source broker.DeadLetterSource, publisher broker.Publisher, topic string) *Controller {
	return &Controller{
		source:    source,
		publisher: publisher,
		topic:     topic,
	}
}

// Pull retrieves up to limit dead-lettered messages, newest publish time
// first. Entries without a publish time sort last.
func (c *Controller) Pull(ctx context.Context, limit int) ([]broker.DeadLetter, error) {
	letters, err := c.source.Pull(ctx, limit)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(letters, func(i, j int) bool {
		if letters[i].PublishTime.IsZero() {
			return false
		}
		if letters[j].PublishTime.IsZero() {
			return true
		}
		return letters[i].PublishTime.After(letters[j].PublishTime)
	})
	return letters, nil
}

// Replay republishes the dead-lettered envelope bytes verbatim to the main
// topic and then acknowledges the entry. The order is deliberate: the ack
// must never precede a confirmed republish, or a failed publish would
// silently lose the message. On publish failure the entry stays in the
// dead-letter queue for a later attempt.
func (c *Controller) Replay(ctx context.Context, ackID string, data []byte) (string, error) {
	if ackID == "" {
		return "", fmt.Errorf("%w: missing ackId", ErrInvalidReplay)
	}

	env, err := envelope.Decode(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReplay, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return "", fmt.Errorf("%w: data must carry eventId and eventType", ErrInvalidReplay)
	}

	messageID, err := c.publisher.Publish(ctx, c.topic, data, env.Attributes())
	if err != nil {
		return "", fmt.Errorf("republish failed: %w", err)
	}

	if err := c.source.Ack(ctx, ackID); err != nil {
		// The message is back in the main flow but still dead-lettered; a
		// second replay will be deduplicated by the store, so reporting the
		// ack failure is enough.
		log.Printf("Ack failed after republish eventId=%s ackId=%s: %v", env.EventID, ackID, err)
		return "", fmt.Errorf("acknowledge failed after republish: %w", err)
	}

	log.Printf("Replayed dead-letter eventId=%s eventType=%s messageId=%s", env.EventID, env.EventType, messageID)
	return env.EventID, nil
}
