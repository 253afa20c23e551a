package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/zoff-tech/event-pipeline/pkg/envelope"
	"go.opentelemetry.io/otel"
)

// PostgresRepository expects the following schema:
//
//	CREATE TABLE events (
//	    event_id       TEXT PRIMARY KEY,
//	    event_type     TEXT NOT NULL,
//	    source         TEXT,
//	    payload        JSONB NOT NULL DEFAULT '{}',
//	    schema_version INT NOT NULL,
//	    ingested_at    BIGINT NOT NULL,
//	    processed_at   BIGINT NOT NULL,
//	    message_id     TEXT,
//	    publish_time   TIMESTAMPTZ
//	);
//	CREATE TABLE counter_shards (
//	    bucket_id TEXT NOT NULL,
//	    shard     INT NOT NULL,
//	    count     BIGINT NOT NULL DEFAULT 0,
//	    PRIMARY KEY (bucket_id, shard)
//	);
type PostgresRepository struct {
	Db *sql.DB // using database/sql
}

func (p *PostgresRepository) GetEvent(ctx context.Context, eventID string) (*EventRecord, error) {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "GetEvent")
	defer span.End()

	startTime := time.Now()

	row := p.Db.QueryRowContext(ctx,
		`SELECT event_id, event_type, source, payload, schema_version, ingested_at, processed_at, message_id, publish_time
         FROM events WHERE event_id = $1`, eventID)

	record, err := scanEventRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	addDBStatsToSpan(span, "GetEvent", "postgresql", time.Since(startTime))

	return record, nil
}

func (p *PostgresRepository) CreateEvent(ctx context.Context, record *EventRecord) error {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "CreateEvent")
	defer span.End()

	startTime := time.Now()

	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return err
	}

	var messageID sql.NullString
	var publishTime sql.NullTime
	if record.Delivery != nil {
		messageID = sql.NullString{String: record.Delivery.MessageID, Valid: record.Delivery.MessageID != ""}
		publishTime = sql.NullTime{Time: record.Delivery.PublishTime, Valid: !record.Delivery.PublishTime.IsZero()}
	}

	// ON CONFLICT DO NOTHING makes the insert conditional: under concurrent
	// first arrival exactly one statement reports an affected row.
	res, err := p.Db.ExecContext(ctx,
		`INSERT INTO events (event_id, event_type, source, payload, schema_version, ingested_at, processed_at, message_id, publish_time)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
         ON CONFLICT (event_id) DO NOTHING`,
		record.EventID, record.EventType, record.Source, payload,
		record.SchemaVersion, record.IngestedAt, record.ProcessedAt,
		messageID, publishTime)
	if err != nil {
		span.RecordError(err)
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return err
	}
	if affected == 0 {
		return ErrDuplicateEvent
	}

	addDBStatsToSpan(span, "CreateEvent", "postgresql", time.Since(startTime))

	return nil
}

func (p *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]EventRecord, error) {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "ListRecent")
	defer span.End()

	startTime := time.Now()

	rows, err := p.Db.QueryContext(ctx,
		`SELECT event_id, event_type, source, payload, schema_version, ingested_at, processed_at, message_id, publish_time
         FROM events ORDER BY processed_at DESC LIMIT $1`, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		record, err := scanEventRecord(rows)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	addDBStatsToSpan(span, "ListRecent", "postgresql", time.Since(startTime))

	return records, nil
}

func (p *PostgresRepository) IncrementShard(ctx context.Context, bucketID string, shard int) error {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "IncrementShard")
	defer span.End()

	_, err := p.Db.ExecContext(ctx,
		`INSERT INTO counter_shards (bucket_id, shard, count) VALUES ($1, $2, 1)
         ON CONFLICT (bucket_id, shard) DO UPDATE SET count = counter_shards.count + 1`,
		bucketID, shard)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (p *PostgresRepository) BucketShards(ctx context.Context, bucketID string) ([]int64, error) {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "BucketShards")
	defer span.End()

	rows, err := p.Db.QueryContext(ctx,
		`SELECT count FROM counter_shards WHERE bucket_id = $1`, bucketID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	var counts []int64
	for rows.Next() {
		var count int64
		if err := rows.Scan(&count); err != nil {
			span.RecordError(err)
			return nil, err
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEventRecord(row rowScanner) (*EventRecord, error) {
	var record EventRecord
	var source sql.NullString
	var payload []byte
	var messageID sql.NullString
	var publishTime sql.NullTime

	err := row.Scan(&record.EventID, &record.EventType, &source, &payload,
		&record.SchemaVersion, &record.IngestedAt, &record.ProcessedAt,
		&messageID, &publishTime)
	if err != nil {
		return nil, err
	}

	record.Source = source.String
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &record.Payload); err != nil {
			return nil, err
		}
	}
	if messageID.Valid || publishTime.Valid {
		record.Delivery = &envelope.Delivery{
			MessageID:   messageID.String,
			PublishTime: publishTime.Time,
		}
	}
	return &record, nil
}
