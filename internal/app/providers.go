package app

import (
	"context"
	"fmt"
	"io"

	"github.com/RideMatch1/neuraxon-viz/internal/adapter/gemini"
	"github.com/RideMatch1/neuraxon-viz/internal/adapter/openai"
	"github.com/RideMatch1/neuraxon-viz/internal/config"
	"github.com/RideMatch1/neuraxon-viz/internal/responder"
)

// Embedder serves both index builds and query embedding.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}

type Providers struct {
	Embedder  Embedder
	Completer responder.Completer
	closers   []io.Closer
}

func (p *Providers) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewProviders builds the embedding and chat clients selected by
// EMBEDDING_PROVIDER and CHAT_PROVIDER. withChat is false for commands
// that only build the index.
func NewProviders(ctx context.Context, cfg *config.Config, withChat bool) (*Providers, error) {
	p := &Providers{}

	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		model, dim := geminiEmbedding(cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		e, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, model, dim)
		if err != nil {
			return nil, fmt.Errorf("gemini embedder: %w", err)
		}
		p.Embedder = e
		p.closers = append(p.closers, e)
	default:
		e, err := openai.NewEmbedder(openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL}, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		p.Embedder = e
	}

	if !withChat {
		return p, nil
	}

	switch cfg.ChatProvider {
	case config.ProviderGemini:
		c, err := gemini.NewCompleter(ctx, cfg.GeminiAPIKey, geminiChatModel(cfg.ChatModel), cfg.ChatTemperature, cfg.ChatMaxTokens)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("gemini completer: %w", err)
		}
		p.Completer = c
		p.closers = append(p.closers, c)
	default:
		c, err := openai.NewCompleter(
			openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL},
			openai.CompleterConfig{Model: cfg.ChatModel, Temperature: cfg.ChatTemperature, MaxTokens: cfg.ChatMaxTokens},
		)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("openai completer: %w", err)
		}
		p.Completer = c
	}

	return p, nil
}

// geminiEmbedding swaps the OpenAI defaults, which are also the config
// defaults, for Gemini's own.
func geminiEmbedding(model string, dim int) (string, int) {
	if model == "" || model == openai.DefaultEmbeddingModel {
		model = gemini.DefaultEmbeddingModel
		if dim == 0 || dim == openai.DefaultEmbeddingDimension {
			dim = gemini.DefaultEmbeddingDimension
		}
	}
	return model, dim
}

func geminiChatModel(model string) string {
	if model == "" || model == openai.DefaultChatModel {
		return gemini.DefaultChatModel
	}
	return model
}
