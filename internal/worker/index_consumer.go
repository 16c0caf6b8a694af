package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/RideMatch1/neuraxon-viz/features/job"
	"github.com/RideMatch1/neuraxon-viz/internal/adapter"
	"github.com/RideMatch1/neuraxon-viz/internal/indexer"
	"github.com/RideMatch1/neuraxon-viz/internal/middleware"
)

const defaultMaxAttempts = 3

type IndexConsumer struct {
	builder     Builder
	jobs        JobTracker
	refreshers  []Refresher
	timeout     time.Duration
	maxAttempts uint16
}

func NewIndexConsumer(b Builder, jobs JobTracker, timeout time.Duration, refreshers ...Refresher) *IndexConsumer {
	return &IndexConsumer{
		builder:     b,
		jobs:        jobs,
		refreshers:  refreshers,
		timeout:     timeout,
		maxAttempts: defaultMaxAttempts,
	}
}

// HandleMessage runs one rebuild. Returning an error makes NSQ redeliver
// the task; that only happens while another build holds the index or a
// transient provider failure still has attempts left.
func (h *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task job.Task
	if err := json.Unmarshal(m.Body, &task); err != nil || task.JobID == "" {
		// Poison pill
		slog.Error("poison pill: invalid index task", "error", err)
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	if err := h.jobs.MarkRunning(ctx, task.JobID); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			slog.WarnContext(ctx, "index job vanished, dropping task", "id", task.JobID)
			return nil
		}
		return err
	}

	buildCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	n, err := h.builder.Build(buildCtx, task.Root)
	if err != nil {
		if errors.Is(err, indexer.ErrBuildInProgress) {
			slog.InfoContext(ctx, "build in progress, requeueing", "id", task.JobID)
			return err
		}
		if adapter.IsTransient(err) && m.Attempts < h.maxAttempts {
			slog.WarnContext(ctx, "transient build failure, retrying", "id", task.JobID, "attempt", m.Attempts, "error", err)
			return err
		}
		slog.ErrorContext(ctx, "index job failed", "id", task.JobID, "error", err)
		if markErr := h.jobs.MarkFailed(ctx, task.JobID, err.Error()); markErr != nil {
			return markErr
		}
		return nil
	}

	if err := h.jobs.MarkSucceeded(ctx, task.JobID, n); err != nil {
		return err
	}
	for _, r := range h.refreshers {
		if err := r.Refresh(); err != nil {
			slog.WarnContext(ctx, "refresh after rebuild failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "index job finished", "id", task.JobID, "chunks", n)
	return nil
}
