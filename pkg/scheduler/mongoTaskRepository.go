package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/go-payouts/pkg/telemetry"
)

type MongoTaskRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

func NewMongoTaskRepository(client *mongo.Client, database, collection string) *MongoTaskRepository {
	if collection == "" {
		collection = "process_tracker"
	}
	return &MongoTaskRepository{
		client:     client,
		database:   database,
		collection: collection,
	}
}

// EnsureIndexes creates the unique task id index Insert relies on to report
// ErrTaskExists, and the index FetchDue claims through.
func (m *MongoTaskRepository) EnsureIndexes(ctx context.Context) error {
	_, err := m.tasks().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("process_tracker_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "schedule_time", Value: 1}},
			Options: options.Index().SetName("process_tracker_due"),
		},
	})
	if err != nil {
		return fmt.Errorf("creating process tracker indexes: %w", err)
	}
	return nil
}

func (m *MongoTaskRepository) tasks() *mongo.Collection {
	return m.client.Database(m.database).Collection(m.collection)
}

func (m *MongoTaskRepository) Insert(ctx context.Context, task *Task) error {
	now := time.Now()
	doc := *task
	doc.Status = StatusNew
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err := m.tasks().InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrTaskExists
	}
	return err
}

// FetchDue claims tasks one at a time with FindOneAndUpdate so that concurrent
// workers never receive the same task.
func (m *MongoTaskRepository) FetchDue(ctx context.Context, batchSize int) ([]Task, error) {
	tracer := otel.Tracer(telemetry.TracerName)
	ctx, span := tracer.Start(ctx, "FetchDue")
	defer span.End()

	startTime := time.Now()
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "schedule_time", Value: 1}}).
		SetReturnDocument(options.After)

	var tasks []Task
	for len(tasks) < batchSize {
		now := time.Now()
		filter := bson.M{
			"$or": []bson.M{
				{"status": StatusNew, "schedule_time": bson.M{"$lte": now}},
				{"status": StatusProcessing, "updated_at": bson.M{"$lt": now.Add(-lockExpiration)}},
			},
		}
		update := bson.M{
			"$set": bson.M{
				"status":     StatusProcessing,
				"updated_at": now,
			},
		}

		var task Task
		err := m.tasks().FindOneAndUpdate(ctx, filter, update, opts).Decode(&task)
		if err == mongo.ErrNoDocuments {
			break
		}
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		tasks = append(tasks, task)
	}

	telemetry.AddDBStats(span, "mongodb", "FetchDue", len(tasks), time.Since(startTime))
	return tasks, nil
}

// MarkFinished leaves tasks a runner already moved out of processing alone.
func (m *MongoTaskRepository) MarkFinished(ctx context.Context, taskID string) error {
	filter := bson.M{"id": taskID, "status": StatusProcessing}
	update := bson.M{
		"$set": bson.M{
			"status":     StatusFinished,
			"updated_at": time.Now(),
		},
	}
	_, err := m.tasks().UpdateOne(ctx, filter, update)
	return err
}

func (m *MongoTaskRepository) SetStatus(ctx context.Context, taskID string, status Status) error {
	filter := bson.M{"id": taskID}
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now(),
		},
	}
	_, err := m.tasks().UpdateOne(ctx, filter, update)
	return err
}

func (m *MongoTaskRepository) SetStatusAndIncrementRetry(ctx context.Context, taskID string, status Status) error {
	filter := bson.M{"id": taskID}
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now(),
		},
		"$inc": bson.M{"retry_count": 1},
	}
	_, err := m.tasks().UpdateOne(ctx, filter, update)
	return err
}
