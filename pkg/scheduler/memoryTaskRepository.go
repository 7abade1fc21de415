package scheduler

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryTaskRepository keeps tasks in process memory.
type MemoryTaskRepository struct {
	mu    sync.Mutex
	tasks map[string]Task
	now   func() time.Time
}

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[string]Task), now: time.Now}
}

func (m *MemoryTaskRepository) Insert(_ context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; ok {
		return ErrTaskExists
	}
	now := m.now()
	t := *task
	t.Tags = slices.Clone(task.Tags)
	t.Status = StatusNew
	t.CreatedAt = now
	t.UpdatedAt = now
	m.tasks[t.ID] = t
	return nil
}

func (m *MemoryTaskRepository) FetchDue(_ context.Context, batchSize int) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	var due []Task
	for _, t := range m.tasks {
		switch {
		case t.Status == StatusNew && !t.ScheduleTime.After(now):
		case t.Status == StatusProcessing && t.UpdatedAt.Before(now.Add(-lockExpiration)):
		default:
			continue
		}
		due = append(due, t)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduleTime.Before(due[j].ScheduleTime) })
	if len(due) > batchSize {
		due = due[:batchSize]
	}
	for i := range due {
		due[i].Status = StatusProcessing
		due[i].UpdatedAt = now
		m.tasks[due[i].ID] = due[i]
	}
	return due, nil
}

func (m *MemoryTaskRepository) MarkFinished(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok || t.Status != StatusProcessing {
		return nil
	}
	t.Status = StatusFinished
	t.UpdatedAt = m.now()
	m.tasks[taskID] = t
	return nil
}

func (m *MemoryTaskRepository) SetStatus(_ context.Context, taskID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil
	}
	t.Status = status
	t.UpdatedAt = m.now()
	m.tasks[taskID] = t
	return nil
}

func (m *MemoryTaskRepository) SetStatusAndIncrementRetry(_ context.Context, taskID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil
	}
	t.Status = status
	t.RetryCount++
	t.UpdatedAt = m.now()
	m.tasks[taskID] = t
	return nil
}

// Get returns a copy of a stored task.
func (m *MemoryTaskRepository) Get(taskID string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	return t, ok
}
