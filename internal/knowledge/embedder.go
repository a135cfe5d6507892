package knowledge

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns text into an embedding vector. Satisfied by langchaingo's
// embeddings.Embedder; fakes implement it in tests.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedderConfig configures the OpenAI-compatible embedding client.
type EmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAIEmbedder creates an embedder backed by an OpenAI-compatible API.
func NewOpenAIEmbedder(config EmbedderConfig) (Embedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("embedder API key is required")
	}

	opts := []openai.Option{
		openai.WithToken(config.APIKey),
	}
	if config.Model != "" {
		opts = append(opts, openai.WithEmbeddingModel(config.Model))
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}
