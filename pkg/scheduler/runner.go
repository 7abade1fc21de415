package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/zoff-tech/go-payouts/pkg/broker"
)

// Runner executes tasks of one runner name.
type Runner interface {
	Run(ctx context.Context, task *Task) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, task *Task) error

func (f RunnerFunc) Run(ctx context.Context, task *Task) error {
	return f(ctx, task)
}

// Workflows maps runner names to runners.
type Workflows struct {
	mu      sync.RWMutex
	runners map[string]Runner

	tasks      TaskRepository
	maxRetries int
}

func NewWorkflows() *Workflows {
	return &Workflows{runners: make(map[string]Runner)}
}

// RetryFailed makes Handle put a task whose runner failed back to new until it
// was retried maxRetries times, and mark it failed after that.
func (w *Workflows) RetryFailed(tasks TaskRepository, maxRetries int) *Workflows {
	w.tasks = tasks
	w.maxRetries = maxRetries
	return w
}

func (w *Workflows) Register(name string, r Runner) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runners[name] = r
}

// Names lists the registered runner names.
func (w *Workflows) Names() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.runners))
	for name := range w.runners {
		names = append(names, name)
	}
	return names
}

// Handle decodes a relayed task and runs it.
func (w *Workflows) Handle(ctx context.Context, msg *broker.Message) error {
	var task Task
	if err := sonic.Unmarshal(msg.Payload, &task); err != nil {
		return fmt.Errorf("decoding task: %w", err)
	}

	w.mu.RLock()
	r, ok := w.runners[task.Runner]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no runner registered for %s", task.Runner)
	}
	err := r.Run(ctx, &task)
	if err == nil || w.tasks == nil {
		return err
	}

	log.Printf("Runner %s failed for task %s: %v", task.Runner, task.ID, err)
	if task.RetryCount < w.maxRetries {
		if uerr := w.tasks.SetStatusAndIncrementRetry(ctx, task.ID, StatusNew); uerr != nil {
			return errors.Join(err, fmt.Errorf("requeueing task %s: %w", task.ID, uerr))
		}
		return nil
	}
	if uerr := w.tasks.SetStatus(ctx, task.ID, StatusFailed); uerr != nil {
		return errors.Join(err, fmt.Errorf("failing task %s: %w", task.ID, uerr))
	}
	log.Printf("Task %s failed after %d retries", task.ID, task.RetryCount)
	return nil
}
