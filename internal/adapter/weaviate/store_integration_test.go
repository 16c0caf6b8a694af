package weaviate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RideMatch1/neuraxon-viz/internal/adapter/weaviate"
	"github.com/RideMatch1/neuraxon-viz/internal/chunk"
	"github.com/RideMatch1/neuraxon-viz/internal/index"
	"github.com/RideMatch1/neuraxon-viz/internal/testutils"
)

func TestWeaviateStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t, testutils.WithWeaviate())
	s.Setup()
	defer s.Teardown()

	store := weaviate.NewStore(s.Weaviate, "CodeChunkTest")
	ctx := context.Background()

	recs := []index.Record{
		{ID: "a.py:function:load", Text: "Function load in a.py", Metadata: chunk.Metadata{File: "a.py", Type: string(chunk.TypeFunction), Name: "load"}},
		{ID: "README.md:documentation:README", Text: "Documentation README.md", Metadata: chunk.Metadata{File: "README.md", Type: string(chunk.TypeDocumentation), Name: "README"}},
	}
	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}}

	require.NoError(t, store.Replace(ctx, recs, vecs))

	res, err := store.Search(ctx, []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a.py:function:load", res[0].ID)
	assert.Less(t, res[0].Distance, res[1].Distance)

	// A second replace leaves only the new content.
	require.NoError(t, store.Replace(ctx, recs[1:], vecs[1:]))
	res, err = store.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "README.md", res[0].Metadata.File)
}
