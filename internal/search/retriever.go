// Package search exposes the outward retriever: embed a query, return
// the top-K nearest chunks with their text and provenance.
package search

import (
	"context"
	"fmt"

	"github.com/docdex/docdex/internal/embed"
	"github.com/docdex/docdex/internal/store"
)

// DefaultTopK is the result count used when the caller passes k <= 0.
const DefaultTopK = 4

// Retriever runs similarity search over the configured vector store.
type Retriever struct {
	embedder embed.Embedder
	vectors  store.VectorStore
}

// NewRetriever creates a retriever over an opened store.
func NewRetriever(e embed.Embedder, vs store.VectorStore) *Retriever {
	return &Retriever{embedder: e, vectors: vs}
}

// Retrieve embeds the query and returns the k nearest chunks.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]store.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if k <= 0 {
		k = DefaultTopK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.vectors.Search(ctx, vec, k)
}
