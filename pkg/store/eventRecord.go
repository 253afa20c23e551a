package store

import (
	"time"

	"github.com/zoff-tech/event-pipeline/pkg/envelope"
)

// EventRecord is the stored form of a processed envelope. The record key is
// EventID; at most one record ever exists per id, and ProcessedAt is set
// exactly once by whichever delivery wins the conditional insert.
type EventRecord struct {
	EventID       string                 `json:"eventId" bson:"_id"`
	EventType     string                 `json:"eventType" bson:"eventType"`
	Source        string                 `json:"source,omitempty" bson:"source,omitempty"`
	Payload       map[string]interface{} `json:"payload" bson:"payload"`
	SchemaVersion int                    `json:"schemaVersion" bson:"schemaVersion"`
	IngestedAt    int64                  `json:"ingestedAt" bson:"ingestedAt"`
	ProcessedAt   int64                  `json:"processedAt" bson:"processedAt"`
	Delivery      *envelope.Delivery     `json:"delivery,omitempty" bson:"delivery,omitempty"`
}

// NewEventRecord builds the record for a first-time processing of env,
// stamping ProcessedAt with the current time.
func NewEventRecord(env *envelope.Envelope, delivery *envelope.Delivery) *EventRecord {
	return &EventRecord{
		EventID:       env.EventID,
		EventType:     env.EventType,
		Source:        env.Source,
		Payload:       env.Payload,
		SchemaVersion: env.SchemaVersion,
		IngestedAt:    env.IngestedAt,
		ProcessedAt:   time.Now().Unix(),
		Delivery:      delivery,
	}
}
