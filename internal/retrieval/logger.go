package retrieval

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RideMatch1/neuraxon-viz/internal/text"
)

const maxLoggedQuery = 200

// QueryLogEntry is one line of the query log. Failed retrievals are logged
// too, with Error set and no hits.
type QueryLogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Query         string    `json:"query"`
	ClientID      string    `json:"client_id"`
	Backend       string    `json:"backend"`
	Hits          int       `json:"hits"`
	TopFile       string    `json:"top_file,omitempty"`
	TopDistance   float32   `json:"top_distance,omitempty"`
	Reranked      bool      `json:"reranked"`
	LatencyMs     int64     `json:"latency_ms"`
	Error         string    `json:"error,omitempty"`
	CorrelationID string    `json:"correlation_id"`
}

// QueryLogger appends JSON lines to a writer. Safe for concurrent use.
type QueryLogger struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
	now func() time.Time
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w), now: time.Now}
}

// NewFileQueryLogger opens path for appending, creating parent directories.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create query log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path comes from config
	if err != nil {
		return nil, fmt.Errorf("open query log: %w", err)
	}
	l := NewQueryLogger(f)
	l.c = f
	return l, nil
}

// Record writes an entry for a finished retrieval.
func (l *QueryLogger) Record(entry QueryLogEntry, results []Result, took time.Duration, err error) {
	entry.Query = text.Truncate(entry.Query, maxLoggedQuery)
	entry.Hits = len(results)
	entry.LatencyMs = took.Milliseconds()
	if len(results) > 0 {
		entry.TopFile = results[0].Metadata.File
		entry.TopDistance = results[0].Distance
	}
	if err != nil {
		entry.Error = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	entry.Timestamp = l.now().UTC()
	if werr := l.enc.Encode(entry); werr != nil {
		slog.Error("failed to write query log entry", "error", werr)
	}
}

func (l *QueryLogger) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}
