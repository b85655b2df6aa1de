package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/codeindex/provider"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements provider.Embedder using OpenAI-compatible embedding APIs.
// The same implementation serves local inference servers (Ollama, LocalAI,
// vLLM) and remote endpoints; only the configured host differs.
type Embedder struct {
	embedder   embeddings.Embedder
	name       string
	dimensions int
	logger     *slog.Logger
}

var _ provider.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *provider.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(config.Token),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	name := "openai:" + config.Model
	return &Embedder{
		embedder:   embedder,
		name:       name,
		dimensions: config.Dimensions,
		logger:     slog.Default().With("component", "openai-embedder", "provider", name),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns provider.Embedder interface to enforce abstraction.
func NewEmbedder(config *provider.Config) (provider.Embedder, error) {
	return newEmbedder(config)
}

// Name identifies the provider in logs and classified errors.
func (e *Embedder) Name() string {
	return e.name
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		e.logger.Warn("embedder returned empty result")
		return []float32{}, nil
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// Every error crossing this boundary is classified transient or permanent.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, provider.Classify(e.name, err)
	}

	if e.dimensions > 0 {
		for i, v := range vectors {
			if len(v) != e.dimensions {
				return nil, provider.Permanent(e.name, fmt.Errorf(
					"unsupported dimensionality for text %d: got %d, want %d",
					i, len(v), e.dimensions))
			}
		}
	}

	return vectors, nil
}

// Close releases resources held by the provider. The underlying HTTP client
// holds no persistent connections that require shutdown, so this is a no-op,
// but it is part of the Embedder contract and safe to call at any time.
func (e *Embedder) Close() error {
	return nil
}
