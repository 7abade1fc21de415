package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a process tracker task.
type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusFinished   Status = "finished"
	StatusFailed     Status = "failed"
)

// A task left in processing longer than this is picked up again.
const lockExpiration = 5 * time.Minute

// ErrTaskExists is returned when a task with the same id was already scheduled.
var ErrTaskExists = errors.New("task already scheduled")

// Task is a unit of deferred work executed by the Runner registered under Runner.
type Task struct {
	ID           string          `json:"id" bson:"id"`
	Name         string          `json:"name" bson:"name"`
	Runner       string          `json:"runner" bson:"runner"`
	Tags         []string        `json:"tags" bson:"tags"`
	TrackingData json.RawMessage `json:"tracking_data" bson:"tracking_data"`
	ScheduleTime time.Time       `json:"schedule_time" bson:"schedule_time"`
	Status       Status          `json:"status" bson:"status"`
	RetryCount   int             `json:"retry_count" bson:"retry_count"`
	CreatedAt    time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" bson:"updated_at"`
}

// Topic is the broker topic tasks for runner are relayed on.
func Topic(runner string) string {
	return "process_tracker." + runner
}

// TaskSink accepts new tasks.
type TaskSink interface {
	Insert(ctx context.Context, task *Task) error
}

// TaskRepository is the persistent queue behind the process tracker.
type TaskRepository interface {
	TaskSink
	// FetchDue claims up to batchSize tasks that are due, or whose processing lock
	// expired, and moves them to processing.
	FetchDue(ctx context.Context, batchSize int) ([]Task, error)
	MarkFinished(ctx context.Context, taskID string) error
	SetStatus(ctx context.Context, taskID string, status Status) error
	SetStatusAndIncrementRetry(ctx context.Context, taskID string, status Status) error
}
