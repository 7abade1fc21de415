package scheduler

import (
	"context"
	"slices"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
)

const spannerTaskTable = "process_tracker"

// SpannerTaskSchema is the Spanner DDL of the process tracker table.
const SpannerTaskSchema = `CREATE TABLE process_tracker (
    id STRING(255) NOT NULL,
    name STRING(255) NOT NULL,
    runner STRING(255) NOT NULL,
    tags ARRAY<STRING(MAX)>,
    tracking_data STRING(MAX),
    schedule_time TIMESTAMP NOT NULL,
    status STRING(16) NOT NULL,
    retry_count INT64 NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
) PRIMARY KEY (id)`

type SpannerTaskRepository struct {
	client *spanner.Client
}

func (s *SpannerTaskRepository) Insert(ctx context.Context, task *Task) error {
	now := time.Now()
	_, err := s.client.Apply(ctx, []*spanner.Mutation{
		spanner.Insert(spannerTaskTable,
			[]string{"id", "name", "runner", "tags", "tracking_data", "schedule_time", "status", "retry_count", "created_at", "updated_at"},
			[]interface{}{task.ID, task.Name, task.Runner, task.Tags, string(task.TrackingData), task.ScheduleTime,
				string(StatusNew), int64(task.RetryCount), now, now}),
	})
	if spanner.ErrCode(err) == codes.AlreadyExists {
		return ErrTaskExists
	}
	return err
}

func (s *SpannerTaskRepository) FetchDue(ctx context.Context, batchSize int) ([]Task, error) {
	var tasks []Task
	_, err := s.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		tasks = tasks[:0]
		now := time.Now()
		stmt := spanner.Statement{
			SQL: `SELECT id, name, runner, tags, tracking_data, schedule_time, retry_count, created_at FROM process_tracker
                  WHERE (status = @statusNew AND schedule_time <= @now)
                     OR (status = @statusProcessing AND updated_at < @lockExpiration)
                  ORDER BY schedule_time
                  LIMIT @batchSize`,
			Params: map[string]interface{}{
				"statusNew":        string(StatusNew),
				"statusProcessing": string(StatusProcessing),
				"now":              now,
				"lockExpiration":   now.Add(-lockExpiration),
				"batchSize":        int64(batchSize),
			},
		}

		iter := txn.Query(ctx, stmt)
		defer iter.Stop()

		var ids []string
		for {
			row, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return err
			}

			var (
				task         Task
				trackingData spanner.NullString
				retryCount   int64
			)
			if err := row.Columns(&task.ID, &task.Name, &task.Runner, &task.Tags, &trackingData,
				&task.ScheduleTime, &retryCount, &task.CreatedAt); err != nil {
				return err
			}
			if trackingData.Valid {
				task.TrackingData = []byte(trackingData.StringVal)
			}
			task.RetryCount = int(retryCount)
			task.Status = StatusProcessing
			task.UpdatedAt = now
			tasks = append(tasks, task)
			ids = append(ids, task.ID)
		}
		if len(ids) == 0 {
			return nil
		}

		claims := make([]*spanner.Mutation, 0, len(ids))
		for _, id := range ids {
			claims = append(claims, spanner.Update(spannerTaskTable,
				[]string{"id", "status", "updated_at"},
				[]interface{}{id, string(StatusProcessing), now}))
		}
		return txn.BufferWrite(claims)
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkFinished only finishes a task that is still processing, so a task a
// runner already put back to new is not lost.
func (s *SpannerTaskRepository) MarkFinished(ctx context.Context, taskID string) error {
	return s.update(ctx, taskID, StatusFinished, false, StatusProcessing)
}

func (s *SpannerTaskRepository) SetStatus(ctx context.Context, taskID string, status Status) error {
	return s.update(ctx, taskID, status, false)
}

func (s *SpannerTaskRepository) SetStatusAndIncrementRetry(ctx context.Context, taskID string, status Status) error {
	return s.update(ctx, taskID, status, true)
}

// update moves taskID to status when its current status is one of from, or
// unconditionally when from is empty. Unknown tasks are ignored.
func (s *SpannerTaskRepository) update(ctx context.Context, taskID string, status Status, incrementRetry bool, from ...Status) error {
	_, err := s.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		row, err := txn.ReadRow(ctx, spannerTaskTable, spanner.Key{taskID}, []string{"status", "retry_count"})
		if spanner.ErrCode(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var (
			current    string
			retryCount int64
		)
		if err := row.Columns(&current, &retryCount); err != nil {
			return err
		}
		if len(from) > 0 && !slices.Contains(from, Status(current)) {
			return nil
		}
		if incrementRetry {
			retryCount++
		}
		return txn.BufferWrite([]*spanner.Mutation{
			spanner.Update(spannerTaskTable,
				[]string{"id", "status", "retry_count", "updated_at"},
				[]interface{}{taskID, string(status), retryCount, time.Now()}),
		})
	})
	return err
}
