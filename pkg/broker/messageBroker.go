package broker

import (
	"context"
	"time"
)

// Publisher defines the operations to publish messages to a broker.
type Publisher interface {
	// Publish sends the message to the specified topic with optional
	// attributes and returns the broker-assigned message id.
	Publish(ctx context.Context, topic string, data []byte, attributes map[string]string) (string, error)
	// Close cleans up any resources (connections).
	Close() error
}

// DeadLetter is one message the broker gave up on after exhausting its
// delivery attempts. AckID is the handle used to remove it once an operator
// has dealt with it.
type DeadLetter struct {
	AckID       string            `json:"ackId"`
	MessageID   string            `json:"messageId"`
	PublishTime time.Time         `json:"publishTime"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Data        []byte            `json:"data"`
}

// DeadLetterSource exposes the broker's dead-letter holding area.
type DeadLetterSource interface {
	// Pull retrieves up to limit dead-lettered messages without removing them.
	Pull(ctx context.Context, limit int) ([]DeadLetter, error)
	// Ack removes a dead-lettered message by its acknowledgment handle.
	Ack(ctx context.Context, ackID string) error
	// Close cleans up any resources (connections).
	Close() error
}
