package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SupportedSchemaVersion is the only envelope format currently accepted.
const SupportedSchemaVersion = 1

const maxFieldLength = 128

var (
	ErrMissingEventID   = errors.New("envelope is missing eventId")
	ErrMissingEventType = errors.New("envelope is missing eventType")
)

// Envelope is the canonical wrapped representation of one event as it
// travels between the gateway, the broker and the store. EventID is the
// idempotency key; once assigned it never changes, across retries and
// dead-letter replays alike.
type Envelope struct {
	EventID       string                 `json:"eventId"`
	EventType     string                 `json:"eventType"`
	Source        string                 `json:"source,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	SchemaVersion int                    `json:"schemaVersion"`
	IngestedAt    int64                  `json:"ingestedAt"`
	ProcessedAt   int64                  `json:"processedAt,omitempty"`
}

// New creates an envelope stamped with the current ingestion time.
func New(eventID, eventType, source string, payload map[string]interface{}) *Envelope {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Envelope{
		EventID:       eventID,
		EventType:     eventType,
		Source:        source,
		Payload:       payload,
		SchemaVersion: SupportedSchemaVersion,
		IngestedAt:    time.Now().Unix(),
	}
}

// Encode serializes the envelope to its JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope from its JSON wire form. A schemaVersion of
// zero is read as 1: producers that predate versioning never wrote the
// field.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if e.SchemaVersion == 0 {
		e.SchemaVersion = SupportedSchemaVersion
	}
	return &e, nil
}

// Validate checks the structural invariants of the envelope. Versions
// other than SupportedSchemaVersion are rejected as unsupported rather
// than passed through.
func (e *Envelope) Validate() error {
	if e.EventID == "" {
		return ErrMissingEventID
	}
	if e.EventType == "" {
		return ErrMissingEventType
	}
	if len(e.EventType) > maxFieldLength {
		return fmt.Errorf("eventType exceeds %d characters", maxFieldLength)
	}
	if len(e.Source) > maxFieldLength {
		return fmt.Errorf("source exceeds %d characters", maxFieldLength)
	}
	if e.SchemaVersion < 1 {
		return fmt.Errorf("invalid schemaVersion %d", e.SchemaVersion)
	}
	if e.SchemaVersion != SupportedSchemaVersion {
		return fmt.Errorf("unsupported schemaVersion %d", e.SchemaVersion)
	}
	return nil
}

// Attributes returns the broker message attributes for the envelope, so
// consumers can filter on type and identity without decoding the body.
func (e *Envelope) Attributes() map[string]string {
	return map[string]string{
		"eventType": e.EventType,
		"eventId":   e.EventID,
	}
}
