package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/RideMatch1/neuraxon-viz/features/job"
	"github.com/RideMatch1/neuraxon-viz/internal/index"
	"github.com/RideMatch1/neuraxon-viz/internal/security"
	"github.com/RideMatch1/neuraxon-viz/internal/usage"
)

type Snapshotter interface {
	Snapshot() (*index.Snapshot, error)
}

type JobCounter interface {
	Counts(ctx context.Context) (map[job.Status]int, error)
}

type UsageSummarizer interface {
	Summary(ctx context.Context, since time.Time) (usage.Summary, error)
}

type GateStats interface {
	Stats() security.Stats
}

type Handler struct {
	store Snapshotter
	jobs  JobCounter
	usage UsageSummarizer
	gate  GateStats
	now   func() time.Time
}

func NewHandler(store Snapshotter, jobs JobCounter, u UsageSummarizer, g GateStats) *Handler {
	return &Handler{store: store, jobs: jobs, usage: u, gate: g, now: time.Now}
}

type StatsResponse struct {
	Chunks     int                `json:"chunks"`
	Generation string             `json:"generation,omitempty"`
	Model      string             `json:"model,omitempty"`
	Dimension  int                `json:"dimension"`
	BuiltAt    *time.Time         `json:"built_at,omitempty"`
	Jobs       map[job.Status]int `json:"jobs"`
	Usage      usage.Summary      `json:"usage"`
	Gate       security.Stats     `json:"gate"`
}

// GetStats reports the live snapshot, rebuild job counts and this month's
// spend. A missing index is reported as zero chunks, not as an error.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "getting stats")

	var resp StatsResponse
	snap, err := h.store.Snapshot()
	switch {
	case err == nil:
		m := snap.Manifest()
		resp.Chunks = m.Count
		resp.Generation = m.Generation
		resp.Model = m.Model
		resp.Dimension = m.Dimension
		builtAt := m.BuiltAt
		resp.BuiltAt = &builtAt
	case errors.Is(err, index.ErrNotIndexed):
	default:
		slog.ErrorContext(ctx, "failed to load snapshot", "error", err)
		h.writeError(ctx, w, "failed to load index", http.StatusInternalServerError)
		return
	}

	resp.Jobs, err = h.jobs.Counts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "failed to count jobs", http.StatusInternalServerError)
		return
	}
	if resp.Jobs == nil {
		resp.Jobs = map[job.Status]int{}
	}

	now := h.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	resp.Usage, err = h.usage.Summary(ctx, monthStart)
	if err != nil {
		slog.ErrorContext(ctx, "failed to summarize usage", "error", err)
		h.writeError(ctx, w, "failed to summarize usage", http.StatusInternalServerError)
		return
	}

	resp.Gate = h.gate.Stats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
