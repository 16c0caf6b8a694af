// Package indexer chunks a repository, embeds the chunks and publishes the
// result as a new index snapshot.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RideMatch1/neuraxon-viz/internal/adapter"
	"github.com/RideMatch1/neuraxon-viz/internal/chunk"
	"github.com/RideMatch1/neuraxon-viz/internal/index"
	"github.com/RideMatch1/neuraxon-viz/internal/observability"
	"github.com/RideMatch1/neuraxon-viz/internal/tokens"
)

var ErrBuildInProgress = errors.New("index build already in progress")

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

// Mirror receives a copy of every published snapshot, e.g. a remote vector
// database used as an alternative search backend.
type Mirror interface {
	Name() string
	Replace(ctx context.Context, records []index.Record, vectors [][]float32) error
}

type Options struct {
	Chunk      chunk.Options
	BatchSize  int
	MaxTokens  int
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

func DefaultOptions() Options {
	return Options{
		Chunk:      chunk.DefaultOptions(),
		BatchSize:  50,
		MaxTokens:  8000,
		MaxRetries: 2,
		RetryDelay: time.Second,
	}
}

type Builder struct {
	embedder Embedder
	counter  tokens.Counter
	store    *index.Store
	mirrors  []Mirror
	opts     Options
	mu       sync.Mutex
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewBuilder(embedder Embedder, counter tokens.Counter, store *index.Store, opts Options, mirrors ...Mirror) *Builder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultOptions().MaxTokens
	}
	return &Builder{
		embedder: embedder,
		counter:  counter,
		store:    store,
		mirrors:  mirrors,
		opts:     opts,
		sleep:    sleepCtx,
	}
}

// Build rebuilds the whole index from root and returns the number of
// embedded chunks. When nothing could be chunked it returns 0 and leaves
// the previous snapshot in place.
func (b *Builder) Build(ctx context.Context, root string) (int, error) {
	if !b.mu.TryLock() {
		return 0, ErrBuildInProgress
	}
	defer b.mu.Unlock()

	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}
	ctx, span := observability.StartBuildSpan(ctx, root)
	defer span.End()

	start := time.Now()
	n, err := b.build(ctx, root)
	if err != nil {
		observability.RecordError(span, err)
		slog.ErrorContext(ctx, "index build failed", "root", root, "error", err)
		return 0, err
	}
	slog.InfoContext(ctx, "index build finished", "root", root, "chunks", n, "duration", time.Since(start))
	return n, nil
}

// Update is a full rebuild; snapshots are never patched in place.
func (b *Builder) Update(ctx context.Context, root string) (int, error) {
	return b.Build(ctx, root)
}

func (b *Builder) build(ctx context.Context, root string) (int, error) {
	files, err := NewScanner(b.indexExclude(root)...).Scan(root)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", root, err)
	}

	chunker := chunk.NewChunker(root, b.opts.Chunk)
	var chunks []chunk.Chunk
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		fileChunks, err := chunker.Chunk(ctx, path)
		if err != nil {
			var perr *chunk.ParseError
			if errors.As(err, &perr) {
				slog.WarnContext(ctx, "skipping unparseable file", "file", perr.File, "error", perr.Err)
				continue
			}
			return 0, err
		}
		chunks = append(chunks, fileChunks...)
	}
	slog.InfoContext(ctx, "repository chunked", "files", len(files), "chunks", len(chunks))

	chunks = dedupe(chunks)
	chunks = b.withinTokenLimit(ctx, chunks)
	if len(chunks) == 0 {
		slog.WarnContext(ctx, "no chunks produced, keeping previous index", "root", root)
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return 0, err
	}

	n := min(len(vectors), len(chunks))
	if n != len(chunks) || n != len(vectors) {
		slog.WarnContext(ctx, "embedding count mismatch, truncating", "chunks", len(chunks), "vectors", len(vectors), "kept", n)
	}
	if n == 0 {
		return 0, nil
	}
	vectors = vectors[:n]
	records := make([]index.Record, n)
	for i, c := range chunks[:n] {
		records[i] = index.Record{ID: c.ID(), Text: c.Text, Metadata: c.Metadata()}
	}

	manifest, err := b.store.Write(ctx, b.embedder.Model(), vectors, records)
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "index snapshot published", "generation", manifest.Generation, "count", manifest.Count)

	for _, m := range b.mirrors {
		if err := m.Replace(ctx, records, vectors); err != nil {
			slog.ErrorContext(ctx, "index mirror failed", "mirror", m.Name(), "error", err)
			continue
		}
		slog.InfoContext(ctx, "index mirrored", "mirror", m.Name(), "count", n)
	}
	return n, nil
}

// indexExclude keeps the index directory out of the scan when it lives
// inside the repository.
func (b *Builder) indexExclude(root string) []string {
	absRoot, err1 := filepath.Abs(root)
	absDir, err2 := filepath.Abs(b.store.Dir())
	if err1 != nil || err2 != nil {
		return nil
	}
	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}
	return []string{filepath.ToSlash(rel)}
}

// dedupe keeps one chunk per id. A repeated id replaces the earlier chunk
// at the earlier position.
func dedupe(chunks []chunk.Chunk) []chunk.Chunk {
	pos := make(map[string]int, len(chunks))
	out := make([]chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		id := c.ID()
		if i, ok := pos[id]; ok {
			out[i] = c
			continue
		}
		pos[id] = len(out)
		out = append(out, c)
	}
	return out
}

func (b *Builder) withinTokenLimit(ctx context.Context, chunks []chunk.Chunk) []chunk.Chunk {
	kept := chunks[:0]
	for _, c := range chunks {
		if n := b.counter.Count(c.Text); n > b.opts.MaxTokens {
			slog.WarnContext(ctx, "chunk over token limit, skipping", "id", c.ID(), "tokens", n, "limit", b.opts.MaxTokens)
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (b *Builder) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.opts.BatchSize {
		end := min(start+b.opts.BatchSize, len(texts))
		batch := texts[start:end]

		vecs, err := b.embedWithRetry(ctx, batch)
		if adapter.IsContextLength(err) {
			slog.WarnContext(ctx, "batch over context length, embedding items one by one", "batch_start", start, "size", len(batch))
			vecs, err = b.embedEach(ctx, batch, start)
		}
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}

		if len(vecs) > len(batch) {
			slog.WarnContext(ctx, "embedder returned extra vectors, dropping them", "batch_start", start, "want", len(batch), "got", len(vecs))
			vecs = vecs[:len(batch)]
		}
		vectors = append(vectors, vecs...)
		if len(vecs) < len(batch) {
			slog.WarnContext(ctx, "embedder returned short batch, stopping", "batch_start", start, "want", len(batch), "got", len(vecs))
			break
		}
		slog.InfoContext(ctx, "embedded batch", "done", len(vectors), "total", len(texts))
	}
	b.fillMissing(ctx, vectors)
	return vectors, nil
}

// embedEach embeds one text at a time. An item the provider still rejects
// is left nil; fillMissing replaces it with a zero vector.
func (b *Builder) embedEach(ctx context.Context, batch []string, offset int) ([][]float32, error) {
	out := make([][]float32, len(batch))
	for i, t := range batch {
		vecs, err := b.embedWithRetry(ctx, []string{t})
		if err == nil && len(vecs) >= 1 {
			out[i] = vecs[0]
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.WarnContext(ctx, "item failed to embed, using zero vector", "offset", offset+i, "error", err)
	}
	return out, nil
}

// fillMissing gives every offset a vector of the width the provider actually
// returned. Missing items and rows of a different width become zero
// vectors, so one bad chunk never fails the snapshot write.
func (b *Builder) fillMissing(ctx context.Context, vectors [][]float32) {
	width := 0
	for _, v := range vectors {
		if len(v) > 0 {
			width = len(v)
			break
		}
	}
	if width == 0 {
		width = b.embedder.Dimension()
	}
	if width != b.embedder.Dimension() && width > 0 {
		slog.WarnContext(ctx, "provider vector width differs from configured dimension", "configured", b.embedder.Dimension(), "actual", width)
	}
	for i, v := range vectors {
		if len(v) == width {
			continue
		}
		if len(v) > 0 {
			slog.WarnContext(ctx, "vector width mismatch, using zero vector", "offset", i, "got", len(v), "want", width)
		}
		vectors[i] = make([]float32, width)
	}
}

func (b *Builder) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= b.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := b.sleep(ctx, adapter.Backoff(b.opts.RetryDelay, attempt)); err != nil {
				return nil, err
			}
		}
		vecs, err := b.embedder.EmbedBatch(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		if !adapter.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		slog.WarnContext(ctx, "transient embedding failure, retrying", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
