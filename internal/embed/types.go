// Package embed provides the embedding capability: a single Embedder
// interface with a remote OpenAI-compatible implementation, a
// deterministic offline implementation, and retry/caching wrappers.
package embed

import "context"

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the capability is currently reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}
