// Package openai adapts the OpenAI API to the embedding and completion
// interfaces used by the indexer, the retriever and the responder.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/RideMatch1/neuraxon-viz/internal/adapter"
)

const (
	Provider = "openai"

	DefaultEmbeddingModel = string(goopenai.SmallEmbedding3)
	DefaultChatModel      = "gpt-4o-mini"

	DefaultEmbeddingDimension = 1536
)

type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a compatible proxy.
	BaseURL string
}

func newClient(cfg Config) (*goopenai.Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	c := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return goopenai.NewClientWithConfig(c), nil
}

// classify tags provider errors so callers can decide on retries and
// fallbacks with errors.Is.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return fmt.Errorf("%w: %w", adapter.ErrContextLength, err)
		}
		if strings.Contains(apiErr.Message, "maximum context length") {
			return fmt.Errorf("%w: %w", adapter.ErrContextLength, err)
		}
		if adapter.TransientStatus(apiErr.HTTPStatusCode) {
			return fmt.Errorf("%w: %w", adapter.ErrTransient, err)
		}
		return err
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && adapter.TransientStatus(reqErr.HTTPStatusCode) {
		return fmt.Errorf("%w: %w", adapter.ErrTransient, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", adapter.ErrTransient, err)
	}
	return err
}
