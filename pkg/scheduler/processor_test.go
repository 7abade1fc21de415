package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zoff-tech/go-payouts/pkg/broker"
	"github.com/zoff-tech/go-payouts/pkg/config"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, msg *broker.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockBroker) Subscribe(ctx context.Context, topic string, h broker.Handler) error {
	return nil
}

func (m *mockBroker) Close() error {
	return nil
}

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Insert(ctx context.Context, task *Task) error {
	return m.Called(ctx, task).Error(0)
}

func (m *mockRepo) FetchDue(ctx context.Context, batchSize int) ([]Task, error) {
	args := m.Called(ctx, batchSize)
	tasks, _ := args.Get(0).([]Task)
	return tasks, args.Error(1)
}

func (m *mockRepo) MarkFinished(ctx context.Context, taskID string) error {
	return m.Called(ctx, taskID).Error(0)
}

func (m *mockRepo) SetStatus(ctx context.Context, taskID string, status Status) error {
	return m.Called(ctx, taskID, status).Error(0)
}

func (m *mockRepo) SetStatusAndIncrementRetry(ctx context.Context, taskID string, status Status) error {
	return m.Called(ctx, taskID, status).Error(0)
}

var testSettings = &config.Settings{MaxRetries: 1, BatchSize: 10, PollInterval: 10 * time.Millisecond}

func newTestRepo(t *testing.T, now time.Time, tasks ...Task) *MemoryTaskRepository {
	repo := NewMemoryTaskRepository()
	repo.now = func() time.Time { return now }
	for i := range tasks {
		require.NoError(t, repo.Insert(context.Background(), &tasks[i]))
	}
	return repo
}

func TestProcessor_PublishesDueTasks(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := newTestRepo(t, now,
		Task{ID: "due", Name: "N", Runner: "R", Tags: []string{"PAYOUTS", "STRIPE"}, ScheduleTime: now.Add(-time.Second)},
		Task{ID: "later", Name: "N", Runner: "R", ScheduleTime: now.Add(time.Minute)},
	)

	b := &mockBroker{}
	b.On("Publish", mock.Anything, mock.MatchedBy(func(msg *broker.Message) bool {
		return msg.Topic == "process_tracker.R" && msg.Headers[HeaderTaskTags] == "PAYOUTS,STRIPE" && msg.Headers[HeaderTaskName] == "N"
	})).Return(nil).Once()

	n, err := NewProcessor(repo, b, testSettings).ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, _ := repo.Get("due")
	assert.Equal(t, StatusFinished, task.Status)
	task, _ = repo.Get("later")
	assert.Equal(t, StatusNew, task.Status)
	b.AssertExpectations(t)
}

func TestProcessor_RetriesThenFails(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := newTestRepo(t, now, Task{ID: "t1", Runner: "R", ScheduleTime: now})

	b := &mockBroker{}
	b.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	p := NewProcessor(repo, b, testSettings)

	_, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	task, _ := repo.Get("t1")
	assert.Equal(t, StatusNew, task.Status)
	assert.Equal(t, 1, task.RetryCount)

	_, err = p.ProcessDue(context.Background())
	require.NoError(t, err)
	task, _ = repo.Get("t1")
	assert.Equal(t, StatusFailed, task.Status)

	n, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessor_StaleProcessingIsReclaimed(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := newTestRepo(t, now, Task{ID: "t1", Runner: "R", ScheduleTime: now})

	tasks, err := repo.FetchDue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	tasks, err = repo.FetchDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	repo.now = func() time.Time { return now.Add(lockExpiration + time.Second) }
	tasks, err = repo.FetchDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

type failingRepo struct {
	*MemoryTaskRepository
	failures int
}

func (f *failingRepo) FetchDue(ctx context.Context, batchSize int) ([]Task, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection refused")
	}
	return f.MemoryTaskRepository.FetchDue(ctx, batchSize)
}

func TestProcessor_RunRelaysThroughLocalBroker(t *testing.T) {
	repo := &failingRepo{MemoryTaskRepository: NewMemoryTaskRepository(), failures: 1}
	require.NoError(t, repo.Insert(context.Background(), &Task{ID: "t1", Runner: "R", ScheduleTime: time.Now().Add(-time.Second)}))

	workflows := NewWorkflows()
	ran := make(chan string, 1)
	workflows.Register("R", RunnerFunc(func(ctx context.Context, task *Task) error {
		ran <- task.ID
		return nil
	}))

	local := broker.NewLocalBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = local.Subscribe(ctx, Topic("R"), workflows.Handle) }()

	p := NewProcessor(repo, local, testSettings)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case id := <-ran:
		assert.Equal(t, "t1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("task was not relayed")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWorkflows_Handle(t *testing.T) {
	w := NewWorkflows()
	w.Register("R", RunnerFunc(func(ctx context.Context, task *Task) error {
		if task.Name == "boom" {
			return errors.New("boom")
		}
		return nil
	}))

	assert.NoError(t, w.Handle(context.Background(), &broker.Message{Payload: []byte(`{"id":"t1","runner":"R"}`)}))
	assert.EqualError(t, w.Handle(context.Background(), &broker.Message{Payload: []byte(`{"id":"t1","runner":"R","name":"boom"}`)}), "boom")
	assert.EqualError(t, w.Handle(context.Background(), &broker.Message{Payload: []byte(`{"id":"t1","runner":"X"}`)}), "no runner registered for X")
	assert.ErrorContains(t, w.Handle(context.Background(), &broker.Message{Payload: []byte(`not json`)}), "decoding task")
}

// directBroker hands published messages straight to one handler.
type directBroker struct {
	h broker.Handler
}

func (d *directBroker) Publish(ctx context.Context, msg *broker.Message) error {
	return d.h(ctx, msg)
}

func (d *directBroker) Subscribe(ctx context.Context, topic string, h broker.Handler) error {
	return nil
}

func (d *directBroker) Close() error {
	return nil
}

func TestWorkflows_FailedRunnerRequeuesTask(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := newTestRepo(t, now, Task{ID: "t1", Name: "N", Runner: "R", ScheduleTime: now.Add(-time.Second)})

	runs := 0
	w := NewWorkflows().RetryFailed(repo, 1)
	w.Register("R", RunnerFunc(func(ctx context.Context, task *Task) error {
		runs++
		return errors.New("connector unavailable")
	}))
	p := NewProcessor(repo, &directBroker{h: w.Handle}, testSettings)

	n, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	task, _ := repo.Get("t1")
	assert.Equal(t, StatusNew, task.Status)
	assert.Equal(t, 1, task.RetryCount)

	n, err = p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	task, _ = repo.Get("t1")
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, 1, task.RetryCount)

	n, err = p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, runs)
}

func TestWorkflows_RequeueFailureIsReturned(t *testing.T) {
	repo := &mockRepo{}
	repo.On("SetStatusAndIncrementRetry", mock.Anything, "t1", StatusNew).Return(errors.New("db down"))

	w := NewWorkflows().RetryFailed(repo, 3)
	w.Register("R", RunnerFunc(func(ctx context.Context, task *Task) error {
		return errors.New("boom")
	}))

	err := w.Handle(context.Background(), &broker.Message{Payload: []byte(`{"id":"t1","runner":"R","retry_count":0}`)})
	assert.ErrorContains(t, err, "boom")
	assert.ErrorContains(t, err, "requeueing task t1: db down")
	repo.AssertExpectations(t)
}

func TestMemoryTaskRepository_MarkFinishedOnlyWhileProcessing(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := newTestRepo(t, now, Task{ID: "t1", Runner: "R", ScheduleTime: now})
	ctx := context.Background()

	require.NoError(t, repo.MarkFinished(ctx, "t1"))
	task, _ := repo.Get("t1")
	assert.Equal(t, StatusNew, task.Status)

	_, err := repo.FetchDue(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFinished(ctx, "t1"))
	task, _ = repo.Get("t1")
	assert.Equal(t, StatusFinished, task.Status)
}
