package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RideMatch1/neuraxon-viz/internal/app"
	"github.com/RideMatch1/neuraxon-viz/internal/config"
	"github.com/RideMatch1/neuraxon-viz/internal/testutils"
)

func TestBootstrap_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := testutils.NewIntegrationSuite(t, testutils.WithPostgres(), testutils.WithNSQ())
	s.Setup()
	defer s.Teardown()

	deps, err := app.Bootstrap(context.Background(), s.GetAppConfig())
	require.NoError(t, err)
	defer deps.Close()

	assert.Nil(t, deps.Remote)
	require.NotNil(t, deps.Publisher)
	assert.NoError(t, deps.Publisher.Publish(config.TopicIndexRebuild, []byte(`{}`)))

	var n int
	require.NoError(t, deps.DB.QueryRow(`SELECT COUNT(*) FROM index_jobs`).Scan(&n))
	assert.Zero(t, n)
}

func TestBootstrap_Resilience_WeaviateDown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := testutils.NewIntegrationSuite(t, testutils.WithPostgres())
	s.Setup()
	defer s.Teardown()

	cfg := s.GetAppConfig()
	cfg.IndexBackend = config.BackendWeaviate
	cfg.WeaviateHost = "localhost:54322"
	cfg.BootstrapRetryAttempts = 2
	cfg.BootstrapRetryDelaySeconds = 1

	start := time.Now()
	deps, err := app.Bootstrap(context.Background(), cfg)

	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "weaviate schema error")
	assert.Greater(t, time.Since(start), time.Second)
}
