package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RideMatch1/neuraxon-viz/internal/chunk"
	"github.com/RideMatch1/neuraxon-viz/internal/index"
	"github.com/RideMatch1/neuraxon-viz/internal/middleware"
	"github.com/RideMatch1/neuraxon-viz/internal/observability"
)

// Result is one retrieved chunk. Distance is squared Euclidean; lower is
// closer.
type Result struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata chunk.Metadata `json:"metadata"`
	Distance float32        `json:"distance"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type Snapshotter interface {
	Snapshot() (*index.Snapshot, error)
}

// Backend searches a remote copy of the index.
type Backend interface {
	Name() string
	Search(ctx context.Context, vector []float32, limit int) ([]Result, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]int, error)
}

type Service struct {
	embedder     Embedder
	store        Snapshotter
	backend      Backend
	reranker     Reranker
	logger       *QueryLogger
	embedTimeout time.Duration
}

// NewService builds a retriever. A nil backend searches the local snapshot;
// reranker and logger are optional.
func NewService(e Embedder, store Snapshotter, backend Backend, r Reranker, l *QueryLogger, embedTimeout time.Duration) *Service {
	return &Service{embedder: e, store: store, backend: backend, reranker: r, logger: l, embedTimeout: embedTimeout}
}

// Retrieve returns up to topN chunks closest to query, nearest first.
func (s *Service) Retrieve(ctx context.Context, query string, topN int) ([]Result, error) {
	start := time.Now()
	var results []Result
	var err error

	reranked := false
	defer func() {
		if s.logger == nil {
			return
		}
		s.logger.Record(QueryLogEntry{
			Query:         query,
			ClientID:      middleware.GetClientIP(ctx),
			Backend:       s.backendName(),
			Reranked:      reranked,
			CorrelationID: middleware.GetCorrelationID(ctx),
		}, results, time.Since(start), err)
	}()

	snap, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}
	if model := snap.Manifest().Model; model != s.embedder.Model() {
		err = fmt.Errorf("%w: index built with %q, querying with %q", index.ErrModelMismatch, model, s.embedder.Model())
		return nil, err
	}
	if topN <= 0 {
		return nil, nil
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	fetch := topN
	if s.reranker != nil {
		fetch = topN * 3
	}

	results, err = s.search(ctx, snap, vec, fetch)
	if err != nil {
		return nil, err
	}

	if s.reranker != nil && len(results) > 1 {
		results, reranked = s.rerank(ctx, query, results)
	}
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

func (s *Service) embed(ctx context.Context, query string) ([]float32, error) {
	if s.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.embedTimeout)
		defer cancel()
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

func (s *Service) search(ctx context.Context, snap *index.Snapshot, vec []float32, limit int) ([]Result, error) {
	ctx, span := observability.StartSearchSpan(ctx, s.backendName(), limit)
	defer span.End()

	if s.backend != nil {
		results, err := s.backend.Search(ctx, vec, limit)
		if err != nil {
			observability.RecordError(span, err)
			return nil, fmt.Errorf("%s search: %w", s.backend.Name(), err)
		}
		return results, nil
	}

	hits, err := snap.Search(vec, limit)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ID: h.Record.ID, Text: h.Record.Text, Metadata: h.Record.Metadata, Distance: h.Distance}
	}
	return results, nil
}

// rerank reorders results by the reranker's ranking. On failure the
// distance order is kept.
func (s *Service) rerank(ctx context.Context, query string, results []Result) ([]Result, bool) {
	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Text
	}

	indices, err := s.reranker.Rerank(ctx, query, docs)
	if err != nil {
		slog.WarnContext(ctx, "rerank failed, keeping distance order", "error", err)
		return results, false
	}

	reranked := make([]Result, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(results) {
			reranked = append(reranked, results[idx])
		}
	}
	if len(reranked) == 0 {
		return results, false
	}
	return reranked, true
}

func (s *Service) backendName() string {
	if s.backend == nil {
		return "local"
	}
	return s.backend.Name()
}
