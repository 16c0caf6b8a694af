package retrieval

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RideMatch1/neuraxon-viz/internal/chunk"
)

func TestQueryLogger_ConcurrentRecords(t *testing.T) {
	var buf bytes.Buffer
	l := NewQueryLogger(&buf)

	const workers, perWorker = 20, 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				l.Record(QueryLogEntry{Query: "grid"}, nil, time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	dec := json.NewDecoder(&buf)
	n := 0
	for dec.More() {
		var e QueryLogEntry
		require.NoError(t, dec.Decode(&e), "entry %d", n)
		n++
	}
	assert.Equal(t, workers*perWorker, n)
}

func TestQueryLogger_Record(t *testing.T) {
	var buf bytes.Buffer
	l := NewQueryLogger(&buf)
	l.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	results := []Result{
		{ID: "a", Metadata: chunk.Metadata{File: "web/static/js/grid.js"}, Distance: 0.25},
		{ID: "b", Metadata: chunk.Metadata{File: "README.md"}, Distance: 0.5},
	}
	l.Record(QueryLogEntry{Query: strings.Repeat("q", 300), Backend: "local", Reranked: true}, results, 42*time.Millisecond, nil)

	var e QueryLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	assert.Len(t, e.Query, maxLoggedQuery)
	assert.Equal(t, 2, e.Hits)
	assert.Equal(t, "web/static/js/grid.js", e.TopFile)
	assert.InDelta(t, 0.25, e.TopDistance, 1e-6)
	assert.EqualValues(t, 42, e.LatencyMs)
	assert.True(t, e.Reranked)
	assert.Equal(t, 2026, e.Timestamp.Year())
	assert.Empty(t, e.Error)
}

func TestQueryLogger_RecordError(t *testing.T) {
	var buf bytes.Buffer
	l := NewQueryLogger(&buf)
	l.Record(QueryLogEntry{Query: "q"}, nil, 0, errors.New("index not built"))

	var e QueryLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	assert.Zero(t, e.Hits)
	assert.Empty(t, e.TopFile)
	assert.Equal(t, "index not built", e.Error)
}

func TestFileQueryLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "query.log")
	l, err := NewFileQueryLogger(path)
	require.NoError(t, err)

	l.Record(QueryLogEntry{Query: "first"}, nil, 2*time.Millisecond, nil)
	l.Record(QueryLogEntry{Query: "second"}, nil, 0, nil)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var e QueryLogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	assert.Equal(t, "first", e.Query)
	assert.EqualValues(t, 2, e.LatencyMs)
}
