package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/zoff-tech/event-pipeline/pkg/envelope"
)

func testRecord() *EventRecord {
	return &EventRecord{
		EventID:       "evt-1",
		EventType:     "order.placed",
		Source:        "checkout",
		Payload:       map[string]interface{}{"orderId": "ORD-1"},
		SchemaVersion: 1,
		IngestedAt:    1717243200,
		ProcessedAt:   1717243201,
		Delivery: &envelope.Delivery{
			MessageID:   "m-1",
			PublishTime: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestCreateEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := &PostgresRepository{Db: db}

	mock.ExpectExec(`INSERT INTO events .* ON CONFLICT \(event_id\) DO NOTHING`).
		WithArgs("evt-1", "order.placed", "checkout", sqlmock.AnyArg(), 1,
			int64(1717243200), int64(1717243201), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	err = repo.CreateEvent(ctx, testRecord())
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEventDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := &PostgresRepository{Db: db}

	// Zero rows affected means the conditional insert lost to an existing record
	mock.ExpectExec(`INSERT INTO events .* ON CONFLICT \(event_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	err = repo.CreateEvent(ctx, testRecord())
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := &PostgresRepository{Db: db}

	rows := sqlmock.NewRows([]string{"event_id", "event_type", "source", "payload",
		"schema_version", "ingested_at", "processed_at", "message_id", "publish_time"}).
		AddRow("evt-1", "order.placed", "checkout", []byte(`{"orderId":"ORD-1"}`),
			1, int64(1717243200), int64(1717243201), "m-1", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	mock.ExpectQuery(`SELECT event_id, event_type, source, payload, schema_version, ingested_at, processed_at, message_id, publish_time FROM events WHERE event_id = \$1`).
		WithArgs("evt-1").
		WillReturnRows(rows)

	ctx := context.Background()
	record, err := repo.GetEvent(ctx, "evt-1")
	assert.NoError(t, err)
	assert.Equal(t, "evt-1", record.EventID)
	assert.Equal(t, "order.placed", record.EventType)
	assert.Equal(t, "ORD-1", record.Payload["orderId"])
	assert.Equal(t, "m-1", record.Delivery.MessageID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := &PostgresRepository{Db: db}

	mock.ExpectQuery(`SELECT event_id, event_type, source, payload, schema_version, ingested_at, processed_at, message_id, publish_time FROM events WHERE event_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}))

	ctx := context.Background()
	_, err = repo.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementShard(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := &PostgresRepository{Db: db}

	mock.ExpectExec(`INSERT INTO counter_shards \(bucket_id, shard, count\) VALUES \(\$1, \$2, 1\) ON CONFLICT \(bucket_id, shard\) DO UPDATE SET count = counter_shards\.count \+ 1`).
		WithArgs("202406011200", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	err = repo.IncrementShard(ctx, "202406011200", 7)
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBucketShards(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := &PostgresRepository{Db: db}

	rows := sqlmock.NewRows([]string{"count"}).AddRow(int64(3)).AddRow(int64(5))
	mock.ExpectQuery(`SELECT count FROM counter_shards WHERE bucket_id = \$1`).
		WithArgs("202406011200").
		WillReturnRows(rows)

	ctx := context.Background()
	counts, err := repo.BucketShards(ctx, "202406011200")
	assert.NoError(t, err)
	assert.Equal(t, []int64{3, 5}, counts)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := &PostgresRepository{Db: db}

	rows := sqlmock.NewRows([]string{"event_id", "event_type", "source", "payload",
		"schema_version", "ingested_at", "processed_at", "message_id", "publish_time"}).
		AddRow("evt-2", "order.placed", nil, []byte(`{}`), 1, int64(2), int64(20), nil, nil).
		AddRow("evt-1", "order.placed", nil, []byte(`{}`), 1, int64(1), int64(10), nil, nil)

	mock.ExpectQuery(`SELECT event_id, event_type, source, payload, schema_version, ingested_at, processed_at, message_id, publish_time FROM events ORDER BY processed_at DESC LIMIT \$1`).
		WithArgs(2).
		WillReturnRows(rows)

	ctx := context.Background()
	records, err := repo.ListRecent(ctx, 2)
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "evt-2", records[0].EventID)
	assert.Nil(t, records[0].Delivery)

	assert.NoError(t, mock.ExpectationsWereMet())
}
