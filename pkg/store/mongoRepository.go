package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
)

type MongoRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

func NewMongoRepository(client *mongo.Client, database, collection string) *MongoRepository {
	return &MongoRepository{
		client:     client,
		database:   database,
		collection: collection,
	}
}

func (m *MongoRepository) events() *mongo.Collection {
	return m.client.Database(m.database).Collection(m.collection)
}

func (m *MongoRepository) shards() *mongo.Collection {
	return m.client.Database(m.database).Collection(statsCollection)
}

func (m *MongoRepository) GetEvent(ctx context.Context, eventID string) (*EventRecord, error) {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "GetEvent")
	defer span.End()

	startTime := time.Now()

	var record EventRecord
	err := m.events().FindOne(ctx, bson.M{"_id": eventID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	addDBStatsToSpan(span, "GetEvent", "mongodb", time.Since(startTime))

	return &record, nil
}

func (m *MongoRepository) CreateEvent(ctx context.Context, record *EventRecord) error {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "CreateEvent")
	defer span.End()

	startTime := time.Now()

	// The _id index arbitrates concurrent first arrivals: exactly one
	// insert succeeds, the rest surface as duplicates.
	_, err := m.events().InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEvent
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	addDBStatsToSpan(span, "CreateEvent", "mongodb", time.Since(startTime))

	return nil
}

func (m *MongoRepository) ListRecent(ctx context.Context, limit int) ([]EventRecord, error) {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "ListRecent")
	defer span.End()

	startTime := time.Now()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "processedAt", Value: -1}})
	cursor, err := m.events().Find(ctx, bson.M{}, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []EventRecord
	for cursor.Next(ctx) {
		var record EventRecord
		if err := cursor.Decode(&record); err != nil {
			span.RecordError(err)
			return nil, err
		}
		records = append(records, record)
	}
	if err := cursor.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	addDBStatsToSpan(span, "ListRecent", "mongodb", time.Since(startTime))

	return records, nil
}

func (m *MongoRepository) IncrementShard(ctx context.Context, bucketID string, shard int) error {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "IncrementShard")
	defer span.End()

	filter := bson.M{"bucket": bucketID, "shard": shard}
	update := bson.M{"$inc": bson.M{"count": 1}}
	_, err := m.shards().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (m *MongoRepository) BucketShards(ctx context.Context, bucketID string) ([]int64, error) {
	tracer := otel.Tracer("event-pipeline")
	ctx, span := tracer.Start(ctx, "BucketShards")
	defer span.End()

	cursor, err := m.shards().Find(ctx, bson.M{"bucket": bucketID})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var counts []int64
	for cursor.Next(ctx) {
		var doc struct {
			Count int64 `bson:"count"`
		}
		if err := cursor.Decode(&doc); err != nil {
			span.RecordError(err)
			return nil, err
		}
		counts = append(counts, doc.Count)
	}
	if err := cursor.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return counts, nil
}
