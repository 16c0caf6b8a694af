package worker_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/RideMatch1/neuraxon-viz/features/job"
	"github.com/RideMatch1/neuraxon-viz/internal/config"
	"github.com/RideMatch1/neuraxon-viz/internal/testutils"
	"github.com/RideMatch1/neuraxon-viz/internal/worker"
)

func TestIndexConsumer_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t, testutils.WithPostgres(), testutils.WithNSQ())
	s.Setup()
	defer s.Teardown()

	repo := job.NewPostgresRepo(s.DB)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := job.NewService(repo, s.NSQ, logger, "/srv/repo")

	b := new(MockBuilder)
	b.On("Build", mock.Anything, "/srv/repo").Return(12, nil)

	consumer, err := nsq.NewConsumer(config.TopicIndexRebuild, config.ChannelIndexWorker, nsq.NewConfig())
	require.NoError(t, err)
	consumer.AddHandler(worker.NewIndexConsumer(b, repo, time.Minute))
	defer consumer.Stop()

	j, err := svc.Enqueue(context.Background())
	require.NoError(t, err)
	require.NoError(t, consumer.ConnectToNSQD(s.NSQDAddr))

	assert.Eventually(t, func() bool {
		got, err := repo.Get(context.Background(), j.ID)
		return err == nil && got.Status == job.StatusSucceeded && got.Chunks == 12
	}, 30*time.Second, 200*time.Millisecond)
}
