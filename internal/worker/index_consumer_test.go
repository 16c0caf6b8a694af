package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/RideMatch1/neuraxon-viz/features/job"
	"github.com/RideMatch1/neuraxon-viz/internal/adapter"
	"github.com/RideMatch1/neuraxon-viz/internal/indexer"
	"github.com/RideMatch1/neuraxon-viz/internal/middleware"
	"github.com/RideMatch1/neuraxon-viz/internal/worker"
)

type MockBuilder struct{ mock.Mock }

func (m *MockBuilder) Build(ctx context.Context, root string) (int, error) {
	args := m.Called(ctx, root)
	return args.Int(0), args.Error(1)
}

type MockTracker struct{ mock.Mock }

func (m *MockTracker) MarkRunning(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTracker) MarkSucceeded(ctx context.Context, id string, chunks int) error {
	return m.Called(ctx, id, chunks).Error(0)
}

func (m *MockTracker) MarkFailed(ctx context.Context, id, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

type countingRefresher struct{ calls int }

func (r *countingRefresher) Refresh() error {
	r.calls++
	return nil
}

func taskMessage(t *testing.T, task job.Task) *nsq.Message {
	t.Helper()
	body, err := json.Marshal(task)
	require.NoError(t, err)
	return &nsq.Message{Body: body, Attempts: 1}
}

func TestIndexConsumer_Success(t *testing.T) {
	b := new(MockBuilder)
	jobs := new(MockTracker)
	ref := &countingRefresher{}
	consumer := worker.NewIndexConsumer(b, jobs, time.Minute, ref)

	jobs.On("MarkRunning", mock.Anything, "j1").Return(nil)
	b.On("Build", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return hasDeadline && middleware.GetCorrelationID(ctx) == "corr-1"
	}), "/srv/repo").Return(87, nil)
	jobs.On("MarkSucceeded", mock.Anything, "j1", 87).Return(nil)

	err := consumer.HandleMessage(taskMessage(t, job.Task{JobID: "j1", Root: "/srv/repo", CorrelationID: "corr-1"}))
	assert.NoError(t, err)
	assert.Equal(t, 1, ref.calls)
	b.AssertExpectations(t)
	jobs.AssertExpectations(t)
}

func TestIndexConsumer_PoisonPill(t *testing.T) {
	consumer := worker.NewIndexConsumer(new(MockBuilder), new(MockTracker), 0)

	assert.NoError(t, consumer.HandleMessage(&nsq.Message{Body: []byte("invalid json")}))
	assert.NoError(t, consumer.HandleMessage(&nsq.Message{Body: []byte(`{"root":"/x"}`)}))
	assert.NoError(t, consumer.HandleMessage(&nsq.Message{}))
}

func TestIndexConsumer_BuildFailureMarksJobFailed(t *testing.T) {
	b := new(MockBuilder)
	jobs := new(MockTracker)
	ref := &countingRefresher{}
	consumer := worker.NewIndexConsumer(b, jobs, 0, ref)

	jobs.On("MarkRunning", mock.Anything, "j1").Return(nil)
	b.On("Build", mock.Anything, "/srv/repo").Return(0, errors.New("scan /srv/repo: permission denied"))
	jobs.On("MarkFailed", mock.Anything, "j1", "scan /srv/repo: permission denied").Return(nil)

	err := consumer.HandleMessage(taskMessage(t, job.Task{JobID: "j1", Root: "/srv/repo"}))
	assert.NoError(t, err)
	assert.Zero(t, ref.calls)
	jobs.AssertExpectations(t)
}

func TestIndexConsumer_BuildInProgressIsRedelivered(t *testing.T) {
	b := new(MockBuilder)
	jobs := new(MockTracker)
	consumer := worker.NewIndexConsumer(b, jobs, 0)

	jobs.On("MarkRunning", mock.Anything, "j1").Return(nil)
	b.On("Build", mock.Anything, "/srv/repo").Return(0, indexer.ErrBuildInProgress)

	err := consumer.HandleMessage(taskMessage(t, job.Task{JobID: "j1", Root: "/srv/repo"}))
	assert.ErrorIs(t, err, indexer.ErrBuildInProgress)
	jobs.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexConsumer_TransientFailure(t *testing.T) {
	transient := fmt.Errorf("embed batch: %w", adapter.ErrTransient)

	t.Run("retried while attempts remain", func(t *testing.T) {
		b := new(MockBuilder)
		jobs := new(MockTracker)
		consumer := worker.NewIndexConsumer(b, jobs, 0)

		jobs.On("MarkRunning", mock.Anything, "j1").Return(nil)
		b.On("Build", mock.Anything, "/srv/repo").Return(0, transient)

		msg := taskMessage(t, job.Task{JobID: "j1", Root: "/srv/repo"})
		assert.Error(t, consumer.HandleMessage(msg))
		jobs.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failed on the last attempt", func(t *testing.T) {
		b := new(MockBuilder)
		jobs := new(MockTracker)
		consumer := worker.NewIndexConsumer(b, jobs, 0)

		jobs.On("MarkRunning", mock.Anything, "j1").Return(nil)
		b.On("Build", mock.Anything, "/srv/repo").Return(0, transient)
		jobs.On("MarkFailed", mock.Anything, "j1", transient.Error()).Return(nil)

		msg := taskMessage(t, job.Task{JobID: "j1", Root: "/srv/repo"})
		msg.Attempts = 3
		assert.NoError(t, consumer.HandleMessage(msg))
		jobs.AssertExpectations(t)
	})
}

func TestIndexConsumer_MissingJob(t *testing.T) {
	b := new(MockBuilder)
	jobs := new(MockTracker)
	consumer := worker.NewIndexConsumer(b, jobs, 0)

	jobs.On("MarkRunning", mock.Anything, "gone").Return(job.ErrNotFound)

	assert.NoError(t, consumer.HandleMessage(taskMessage(t, job.Task{JobID: "gone", Root: "/srv/repo"})))
	b.AssertNotCalled(t, "Build", mock.Anything, mock.Anything)
}
