package provider

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use and must classify
// every returned error via Transient or Permanent from this package.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a
	// batch. The returned slice contains embeddings in the same order as the
	// input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Name identifies the provider in logs and classified errors.
	Name() string

	// Close releases resources held by the provider (connections, loaded
	// model state). Must be safe to call even if no embedding occurred.
	Close() error
}
