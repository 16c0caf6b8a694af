package job_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RideMatch1/neuraxon-viz/features/job"
	"github.com/RideMatch1/neuraxon-viz/internal/testutils"
)

func TestPostgresRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t, testutils.WithPostgres())
	s.Setup()
	defer s.Teardown()

	repo := job.NewPostgresRepo(s.DB)
	ctx := context.Background()

	j := &job.Job{Root: "/srv/repo", CorrelationID: "c-1"}
	require.NoError(t, repo.Create(ctx, j))
	require.NotEmpty(t, j.ID)

	require.NoError(t, repo.MarkRunning(ctx, j.ID))
	require.NoError(t, repo.MarkFailed(ctx, j.ID, "embedding provider unavailable"))
	require.NoError(t, repo.Requeue(ctx, j.ID))
	assert.ErrorIs(t, repo.Requeue(ctx, j.ID), job.ErrNotFound, "a queued job is not requeued twice")

	got, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, got.Status)
	assert.Equal(t, 1, got.Retries)

	require.NoError(t, repo.MarkSucceeded(ctx, j.ID, 321))
	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[job.StatusSucceeded])

	jobs, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 321, jobs[0].Chunks)

	_, err = repo.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, job.ErrNotFound)
}
