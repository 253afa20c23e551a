package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record exists for an event id.
	ErrNotFound = errors.New("event not found")
	// ErrDuplicateEvent is returned by CreateEvent when a record with the
	// same event id already exists. Callers treat it as a recognized
	// outcome, not a failure.
	ErrDuplicateEvent = errors.New("event already stored")
)

// EventRepository defines the database operations for processed events and
// the sharded throughput counter.
type EventRepository interface {
	// GetEvent looks up a stored record by event id; ErrNotFound when absent.
	GetEvent(ctx context.Context, eventID string) (*EventRecord, error)
	// CreateEvent inserts the record if and only if no record with the same
	// event id exists; ErrDuplicateEvent otherwise. The insert must be
	// conditional at the store so concurrent duplicate deliveries cannot
	// both win.
	CreateEvent(ctx context.Context, record *EventRecord) error
	// ListRecent returns up to limit records, newest processing time first.
	ListRecent(ctx context.Context, limit int) ([]EventRecord, error)
	// IncrementShard atomically adds 1 to one shard of a counter bucket.
	IncrementShard(ctx context.Context, bucketID string, shard int) error
	// BucketShards returns the value of every shard that holds data for the
	// bucket. A missing bucket yields an empty slice, not an error.
	BucketShards(ctx context.Context, bucketID string) ([]int64, error)
}
