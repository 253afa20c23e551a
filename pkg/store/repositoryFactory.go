package store

import (
	"context"
	"database/sql"
	"fmt"

	"cloud.google.com/go/spanner"
	"github.com/zoff-tech/event-pipeline/pkg/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	_ "github.com/lib/pq" // PostgreSQL driver
)

var NewSpannerRepositoryFactory = func(client *spanner.Client) EventRepository {
	return &SpannerRepository{client: client}
}

func NewRepository(ctx context.Context, cfg config.DbSettings) (EventRepository, error) {
	switch cfg.Type {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &PostgresRepository{Db: db}, nil
	case "spanner":
		client, err := spanner.NewClient(ctx, cfg.URI)
		if err != nil {
			return nil, err
		}
		return NewSpannerRepositoryFactory(client), nil
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
		if err != nil {
			return nil, err
		}
		collection := cfg.Collection
		if collection == "" {
			collection = "events"
		}
		return NewMongoRepository(client, cfg.Database, collection), nil
	default:
		return nil, fmt.Errorf("unsupported DB type: %s", cfg.Type)
	}
}
