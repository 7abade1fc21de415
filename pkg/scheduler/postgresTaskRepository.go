package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/go-payouts/pkg/telemetry"
)

// TaskSchema is the Postgres DDL of the process tracker table.
var TaskSchema = []string{
	`CREATE TABLE IF NOT EXISTS process_tracker (
        id VARCHAR(255) PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        runner VARCHAR(255) NOT NULL,
        tags TEXT[] NOT NULL DEFAULT '{}',
        tracking_data JSONB,
        schedule_time TIMESTAMPTZ NOT NULL,
        status VARCHAR(16) NOT NULL,
        retry_count INTEGER NOT NULL DEFAULT 0,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS process_tracker_due_idx ON process_tracker (status, schedule_time)`,
}

type PostgresTaskRepository struct {
	db *sql.DB
}

func NewPostgresTaskRepository(db *sql.DB) *PostgresTaskRepository {
	return &PostgresTaskRepository{db: db}
}

func (p *PostgresTaskRepository) Insert(ctx context.Context, task *Task) error {
	return p.withTransaction(ctx, "InsertTask", func(ctx context.Context, tx *sql.Tx) (int, error) {
		now := time.Now()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO process_tracker (id, name, runner, tags, tracking_data, schedule_time, status, retry_count, created_at, updated_at)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			task.ID, task.Name, task.Runner, pq.Array(task.Tags), []byte(task.TrackingData), task.ScheduleTime,
			StatusNew, task.RetryCount, now, now)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return 0, ErrTaskExists
		}
		return 1, err
	})
}

func (p *PostgresTaskRepository) FetchDue(ctx context.Context, batchSize int) ([]Task, error) {
	var tasks []Task
	err := p.withTransaction(ctx, "FetchDue", func(ctx context.Context, tx *sql.Tx) (int, error) {
		now := time.Now()
		rows, err := tx.QueryContext(ctx,
			`SELECT id, name, runner, tags, tracking_data, schedule_time, retry_count, created_at FROM process_tracker
             WHERE ((status='new' AND schedule_time <= $1) OR (status='processing' AND updated_at < $2))
             ORDER BY schedule_time LIMIT $3 FOR UPDATE SKIP LOCKED`,
			now, now.Add(-lockExpiration), batchSize)
		if err != nil {
			return 0, err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				task         Task
				trackingData []byte
			)
			if err := rows.Scan(&task.ID, &task.Name, &task.Runner, pq.Array(&task.Tags), &trackingData,
				&task.ScheduleTime, &task.RetryCount, &task.CreatedAt); err != nil {
				return 0, err
			}
			task.TrackingData = trackingData
			task.Status = StatusProcessing
			task.UpdatedAt = now
			tasks = append(tasks, task)
		}
		if err := rows.Err(); err != nil {
			return 0, err
		}
		if len(tasks) == 0 {
			return 0, nil
		}

		ids := make([]string, len(tasks))
		for i, task := range tasks {
			ids[i] = task.ID
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE process_tracker SET status=$1, updated_at=$2 WHERE id = ANY($3)`,
			StatusProcessing, now, pq.Array(ids))
		return len(tasks), err
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkFinished leaves tasks a runner already moved out of processing alone.
func (p *PostgresTaskRepository) MarkFinished(ctx context.Context, taskID string) error {
	return p.withTransaction(ctx, "MarkFinished", func(ctx context.Context, tx *sql.Tx) (int, error) {
		_, err := tx.ExecContext(ctx,
			`UPDATE process_tracker SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4`,
			StatusFinished, time.Now(), taskID, StatusProcessing)
		return 1, err
	})
}

func (p *PostgresTaskRepository) SetStatus(ctx context.Context, taskID string, status Status) error {
	return p.withTransaction(ctx, "SetStatus", func(ctx context.Context, tx *sql.Tx) (int, error) {
		_, err := tx.ExecContext(ctx,
			`UPDATE process_tracker SET status=$1, updated_at=$2 WHERE id=$3`,
			status, time.Now(), taskID)
		return 1, err
	})
}

func (p *PostgresTaskRepository) SetStatusAndIncrementRetry(ctx context.Context, taskID string, status Status) error {
	return p.withTransaction(ctx, "SetStatusAndIncrementRetry", func(ctx context.Context, tx *sql.Tx) (int, error) {
		_, err := tx.ExecContext(ctx,
			`UPDATE process_tracker SET status=$1, retry_count = retry_count + 1, updated_at=$2 WHERE id=$3`,
			status, time.Now(), taskID)
		return 1, err
	})
}

// Migrate applies TaskSchema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range TaskSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresTaskRepository) withTransaction(ctx context.Context, spanName string, fn func(ctx context.Context, tx *sql.Tx) (int, error)) error {
	tracer := otel.Tracer(telemetry.TracerName)
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	start := time.Now()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	n, err := fn(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		telemetry.RecordError(span, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	telemetry.AddDBStats(span, "postgresql", spanName, n, time.Since(start))
	return nil
}
