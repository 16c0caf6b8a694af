package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RideMatch1/neuraxon-viz/internal/config"
	"github.com/RideMatch1/neuraxon-viz/internal/middleware"
)

const (
	defaultListLimit      = 50
	defaultPublishTimeout = 5 * time.Second
)

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	logger         *slog.Logger
	root           string
	publishTimeout time.Duration
}

// NewService returns a service that rebuilds the index of root.
func NewService(repo Repository, pub EventPublisher, logger *slog.Logger, root string) *Service {
	return &Service{repo: repo, pub: pub, logger: logger, root: root, publishTimeout: defaultPublishTimeout}
}

// Enqueue records a rebuild and hands it to the worker. A job whose task
// could not be published is marked failed so it can be retried.
func (s *Service) Enqueue(ctx context.Context) (*Job, error) {
	j := &Job{Root: s.root, CorrelationID: middleware.GetCorrelationID(ctx)}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.publish(ctx, j); err != nil {
		if markErr := s.repo.MarkFailed(ctx, j.ID, err.Error()); markErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark job failed", "id", j.ID, "error", markErr)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "index rebuild queued", "id", j.ID, "root", j.Root)
	return j, nil
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx, defaultListLimit)
}

func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Status != StatusFailed {
		return ErrNotRetryable
	}
	if err := s.repo.Requeue(ctx, id); err != nil {
		return err
	}
	return s.publish(ctx, j)
}

func (s *Service) Counts(ctx context.Context) (map[Status]int, error) {
	return s.repo.CountByStatus(ctx)
}

func (s *Service) publish(ctx context.Context, j *Job) error {
	body, err := json.Marshal(Task{JobID: j.ID, Root: j.Root, CorrelationID: j.CorrelationID})
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIndexRebuild, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("publish rebuild task: %w", err)
		}
		return nil
	case <-time.After(s.publishTimeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
