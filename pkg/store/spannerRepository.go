package store

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/spanner"
	"github.com/zoff-tech/event-pipeline/pkg/envelope"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
)

type SpannerRepository struct {
	client *spanner.Client
}

func (s *SpannerRepository) GetEvent(ctx context.Context, eventID string) (*EventRecord, error) {
	stmt := spanner.Statement{
		SQL: `SELECT event_id, event_type, source, payload, schema_version, ingested_at, processed_at, message_id, publish_time
              FROM events WHERE event_id = @eventID`,
		Params: map[string]interface{}{
			"eventID": eventID,
		},
	}

	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	row, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSpannerRow(row)
}

func (s *SpannerRepository) CreateEvent(ctx context.Context, record *EventRecord) error {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return err
	}

	var messageID spanner.NullString
	var publishTime spanner.NullTime
	if record.Delivery != nil {
		messageID = spanner.NullString{StringVal: record.Delivery.MessageID, Valid: record.Delivery.MessageID != ""}
		publishTime = spanner.NullTime{Time: record.Delivery.PublishTime, Valid: !record.Delivery.PublishTime.IsZero()}
	}

	// A plain insert mutation fails with AlreadyExists when the key is
	// taken, which is the conditional-create the idempotency check needs.
	mutation := spanner.Insert("events",
		[]string{"event_id", "event_type", "source", "payload", "schema_version", "ingested_at", "processed_at", "message_id", "publish_time"},
		[]interface{}{record.EventID, record.EventType, record.Source, string(payload),
			int64(record.SchemaVersion), record.IngestedAt, record.ProcessedAt,
			messageID, publishTime})

	_, err = s.client.Apply(ctx, []*spanner.Mutation{mutation})
	if spanner.ErrCode(err) == codes.AlreadyExists {
		return ErrDuplicateEvent
	}
	return err
}

func (s *SpannerRepository) ListRecent(ctx context.Context, limit int) ([]EventRecord, error) {
	stmt := spanner.Statement{
		SQL: `SELECT event_id, event_type, source, payload, schema_version, ingested_at, processed_at, message_id, publish_time
              FROM events ORDER BY processed_at DESC LIMIT @limit`,
		Params: map[string]interface{}{
			"limit": int64(limit),
		},
	}

	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var records []EventRecord
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		record, err := decodeSpannerRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

func (s *SpannerRepository) IncrementShard(ctx context.Context, bucketID string, shard int) error {
	// The read and write share one transaction, so the increment is atomic
	// against concurrent writers of the same shard.
	_, err := s.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		var count int64
		row, err := txn.ReadRow(ctx, "counter_shards", spanner.Key{bucketID, int64(shard)}, []string{"count"})
		switch {
		case spanner.ErrCode(err) == codes.NotFound:
			count = 0
		case err != nil:
			return err
		default:
			if err := row.Columns(&count); err != nil {
				return err
			}
		}
		return txn.BufferWrite([]*spanner.Mutation{
			spanner.InsertOrUpdate("counter_shards",
				[]string{"bucket_id", "shard", "count"},
				[]interface{}{bucketID, int64(shard), count + 1}),
		})
	})
	return err
}

func (s *SpannerRepository) BucketShards(ctx context.Context, bucketID string) ([]int64, error) {
	stmt := spanner.Statement{
		SQL: `SELECT count FROM counter_shards WHERE bucket_id = @bucketID`,
		Params: map[string]interface{}{
			"bucketID": bucketID,
		},
	}

	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var counts []int64
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var count int64
		if err := row.Columns(&count); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	return counts, nil
}

func decodeSpannerRow(row *spanner.Row) (*EventRecord, error) {
	var record EventRecord
	var source spanner.NullString
	var payload string
	var schemaVersion int64
	var messageID spanner.NullString
	var publishTime spanner.NullTime

	if err := row.Columns(&record.EventID, &record.EventType, &source, &payload,
		&schemaVersion, &record.IngestedAt, &record.ProcessedAt,
		&messageID, &publishTime); err != nil {
		return nil, err
	}

	record.Source = source.StringVal
	record.SchemaVersion = int(schemaVersion)
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &record.Payload); err != nil {
			return nil, err
		}
	}
	if messageID.Valid || publishTime.Valid {
		record.Delivery = &envelope.Delivery{
			MessageID:   messageID.StringVal,
			PublishTime: publishTime.Time,
		}
	}
	return &record, nil
}
