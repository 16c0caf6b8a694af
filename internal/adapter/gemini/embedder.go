// Package gemini adapts Google's Gemini API as an alternate embedding and
// chat provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/RideMatch1/neuraxon-viz/internal/adapter"
	"github.com/RideMatch1/neuraxon-viz/internal/observability"
)

const (
	Provider = "gemini"

	DefaultEmbeddingModel = "gemini-embedding-001"
	DefaultChatModel      = "gemini-2.0-flash"

	// gemini-embedding-001 returns 3072 values unless told otherwise.
	DefaultEmbeddingDimension = 3072
)

type Embedder struct {
	client    *genai.Client
	model     string
	dimension int
}

func NewEmbedder(ctx context.Context, apiKey, model string, dimension int, opts ...option.ClientOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, append(opts, option.WithAPIKey(apiKey))...)
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

func (e *Embedder) Close() error { return e.client.Close() }

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := observability.StartEmbedSpan(ctx, Provider, e.model, len(texts))
	defer span.End()

	slog.DebugContext(ctx, "embedding content", "model", e.model, "inputs", len(texts))
	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		err = classify(err)
		observability.RecordError(span, err)
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}

	out := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			break
		}
		out = append(out, emb.Values)
	}
	return out, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return vecs[0], nil
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 400 && strings.Contains(strings.ToLower(gerr.Message), "exceeds the maximum") {
			return fmt.Errorf("%w: %w", adapter.ErrContextLength, err)
		}
		if adapter.TransientStatus(gerr.Code) {
			return fmt.Errorf("%w: %w", adapter.ErrTransient, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", adapter.ErrTransient, err)
	}
	return err
}
