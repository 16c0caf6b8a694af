package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/RideMatch1/neuraxon-viz/internal/observability"
)

type Embedder struct {
	client    *goopenai.Client
	model     string
	dimension int
}

// NewEmbedder returns an embedder for model. dimension is requested from
// models that support shortening and reported to the index either way.
func NewEmbedder(cfg Config, model string, dimension int) (*Embedder, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{client: client, model: model, dimension: dimension}, nil
}

func (e *Embedder) Model() string  { return e.model }
func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := observability.StartEmbedSpan(ctx, Provider, e.model, len(texts))
	defer span.End()

	req := goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(e.model),
	}
	if e.dimension > 0 && strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dimension
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		err = classify(err)
		observability.RecordError(span, err)
		slog.ErrorContext(ctx, "embedding failed", "model", e.model, "inputs", len(texts), "error", err)
		return nil, err
	}
	observability.RecordTokens(span, resp.Usage.PromptTokens, 0)

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	// A short response is returned as-is; the indexer handles the gap.
	n := 0
	for n < len(out) && out[n] != nil {
		n++
	}
	return out[:n], nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return vecs[0], nil
}
