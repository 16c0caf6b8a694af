package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RideMatch1/neuraxon-viz/internal/adapter/gemini"
	"github.com/RideMatch1/neuraxon-viz/internal/adapter/openai"
	"github.com/RideMatch1/neuraxon-viz/internal/config"
)

func TestGeminiDefaults(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		dim       int
		wantModel string
		wantDim   int
	}{
		{"openai defaults swapped", openai.DefaultEmbeddingModel, openai.DefaultEmbeddingDimension, gemini.DefaultEmbeddingModel, gemini.DefaultEmbeddingDimension},
		{"empty model", "", 0, gemini.DefaultEmbeddingModel, gemini.DefaultEmbeddingDimension},
		{"explicit dimension kept", openai.DefaultEmbeddingModel, 768, gemini.DefaultEmbeddingModel, 768},
		{"explicit model kept", "text-embedding-004", 768, "text-embedding-004", 768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, dim := geminiEmbedding(tt.model, tt.dim)
			assert.Equal(t, tt.wantModel, model)
			assert.Equal(t, tt.wantDim, dim)
		})
	}

	assert.Equal(t, gemini.DefaultChatModel, geminiChatModel(openai.DefaultChatModel))
	assert.Equal(t, gemini.DefaultChatModel, geminiChatModel(""))
	assert.Equal(t, "gemini-2.5-pro", geminiChatModel("gemini-2.5-pro"))
}

func TestNewProviders_GeminiWithDefaultConfig(t *testing.T) {
	cfg := &config.Config{
		EmbeddingProvider:   config.ProviderGemini,
		EmbeddingModel:      openai.DefaultEmbeddingModel,
		EmbeddingDimensions: openai.DefaultEmbeddingDimension,
		ChatProvider:        config.ProviderGemini,
		ChatModel:           openai.DefaultChatModel,
		GeminiAPIKey:        "test-key",
	}

	p, err := NewProviders(context.Background(), cfg, true)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, gemini.DefaultEmbeddingModel, p.Embedder.Model())
	assert.Equal(t, gemini.DefaultEmbeddingDimension, p.Embedder.Dimension())
	assert.Equal(t, gemini.DefaultChatModel, p.Completer.Model())
}
