package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-payouts/pkg/broker"
	"github.com/zoff-tech/go-payouts/pkg/config"
	"github.com/zoff-tech/go-payouts/pkg/telemetry"
)

const (
	HeaderTaskName = "task_name"
	HeaderTaskTags = "task_tags"
)

// Processor relays due process tracker tasks to the broker.
type Processor struct {
	repo         TaskRepository
	broker       broker.MessageBroker
	tracer       trace.Tracer
	maxRetries   int
	batchSize    int
	pollInterval time.Duration
	newBackOff   func() backoff.BackOff
}

func NewProcessor(repo TaskRepository, b broker.MessageBroker, cfg *config.Settings) *Processor {
	return &Processor{
		repo:         repo,
		broker:       b,
		tracer:       otel.Tracer(telemetry.TracerName),
		maxRetries:   cfg.MaxRetries,
		batchSize:    cfg.BatchSize,
		pollInterval: cfg.PollInterval,
		newBackOff: func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.MaxInterval = cfg.PollInterval * 6
			eb.MaxElapsedTime = 0
			return eb
		},
	}
}

// Run polls until ctx is cancelled. Fetch failures back off exponentially.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		err := backoff.RetryNotify(func() error {
			_, err := p.ProcessDue(ctx)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}, backoff.WithContext(p.newBackOff(), ctx), func(err error, wait time.Duration) {
			log.Printf("Failed to fetch due tasks, retrying in %s: %v", wait, err)
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessDue relays one batch of due tasks and returns how many were fetched.
func (p *Processor) ProcessDue(ctx context.Context) (int, error) {
	tasks, err := p.repo.FetchDue(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetching due tasks: %w", err)
	}
	for i := range tasks {
		p.process(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (p *Processor) process(ctx context.Context, task *Task) {
	ctx, span := p.tracer.Start(ctx, "ProcessTask", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.name", task.Name),
		attribute.String("task.runner", task.Runner),
		attribute.Int("task.retry_count", task.RetryCount),
		attribute.String("task.schedule_time", task.ScheduleTime.String()),
	))
	defer span.End()

	payload, err := sonic.Marshal(task)
	if err == nil {
		err = p.broker.Publish(ctx, &broker.Message{
			Topic:   Topic(task.Runner),
			Payload: payload,
			Headers: map[string]string{
				HeaderTaskName: task.Name,
				HeaderTaskTags: strings.Join(task.Tags, ","),
			},
		})
	}
	if err != nil {
		log.Printf("Failed to publish task %s: %v", task.ID, err)
		telemetry.RecordError(span, err)

		if task.RetryCount < p.maxRetries {
			if err := p.repo.SetStatusAndIncrementRetry(ctx, task.ID, StatusNew); err != nil {
				log.Printf("Failed to update retry count for task %s: %v", task.ID, err)
			}
		} else {
			if err := p.repo.SetStatus(ctx, task.ID, StatusFailed); err != nil {
				log.Printf("Failed to mark task %s as failed: %v", task.ID, err)
			}
		}
		return
	}

	if err := p.repo.MarkFinished(ctx, task.ID); err != nil {
		log.Printf("Failed to mark task %s as finished: %v", task.ID, err)
		telemetry.RecordError(span, err)
	}
}
