package scheduler

import (
	"context"
	"database/sql"
	"fmt"

	"cloud.google.com/go/spanner"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zoff-tech/go-payouts/pkg/config"

	_ "github.com/lib/pq" // PostgreSQL driver
)

var sqlOpen = sql.Open

var NewSpannerTaskRepository = func(client *spanner.Client) TaskRepository {
	return &SpannerTaskRepository{client: client}
}

var NewMongoClient = func(ctx context.Context, uri string) (*mongo.Client, error) {
	return mongo.Connect(ctx, options.Client().ApplyURI(uri))
}

var ensureMongoIndexes = func(ctx context.Context, repo *MongoTaskRepository) error {
	return repo.EnsureIndexes(ctx)
}

// NewTaskRepository returns the process tracker store selected by cfg.Type.
func NewTaskRepository(ctx context.Context, cfg config.DbSettings) (TaskRepository, error) {
	switch cfg.Type {
	case "postgres":
		db, err := sqlOpen("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewPostgresTaskRepository(db), nil
	case "spanner":
		client, err := spanner.NewClient(ctx, cfg.URI)
		if err != nil {
			return nil, err
		}
		return NewSpannerTaskRepository(client), nil
	case "mongo":
		client, err := NewMongoClient(ctx, cfg.URI)
		if err != nil {
			return nil, err
		}
		repo := NewMongoTaskRepository(client, cfg.DBName, cfg.Collection)
		if err := ensureMongoIndexes(ctx, repo); err != nil {
			return nil, err
		}
		return repo, nil
	case "memory":
		return NewMemoryTaskRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported DB type: %s", cfg.Type)
	}
}
