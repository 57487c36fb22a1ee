// Package store provides the vector store adapter: one interface over the
// embedded local backend (HNSW, persisted on disk) and the serverless
// remote backend (HTTP). The underlying similarity engines are external;
// this package owns ids, payloads, and dimension enforcement.
package store

import (
	"context"
	"fmt"
)

// Backend kinds.
const (
	BackendLocal      = "local"
	BackendServerless = "serverless"
)

// Item is one vector with its payload, addressed by chunk id.
type Item struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// SearchResult is a single similarity hit.
type SearchResult struct {
	ID       string
	Text     string
	Metadata map[string]string
	// Score is normalized similarity in [0,1]; higher is closer.
	Score float32
}

// Config configures a vector store backend.
type Config struct {
	// Backend selects "local" or "serverless".
	Backend string
	// Dimensions is the embedding dimensionality. A persisted collection
	// built with different dimensions is recreated at construction.
	Dimensions int
	// Metric is "cos" (default) or "l2".
	Metric string

	// Path is the on-disk location of the local backend.
	Path string

	// RemoteURL, APIKey, and Collection configure the serverless backend.
	RemoteURL  string
	APIKey     string
	Collection string

	// HNSW tuning (local backend).
	M        int
	EfSearch int
}

// VectorStore is the capability interface the reconciler drives.
// Implementations must make Upsert durable before returning, so the
// ledger write that follows never references a vector that was lost.
type VectorStore interface {
	// Upsert inserts or replaces vectors by id.
	Upsert(ctx context.Context, items []Item) error

	// Delete removes vectors by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// Contains reports whether an id exists.
	Contains(ctx context.Context, id string) (bool, error)

	// AllIDs returns every id in the store, for consistency checks.
	AllIDs(ctx context.Context) ([]string, error)

	// Search returns the k nearest items to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// ErrDimensionMismatch indicates a vector of the wrong dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// New creates the configured vector store backend.
func New(cfg Config) (VectorStore, error) {
	switch cfg.Backend {
	case BackendLocal:
		return NewLocalStore(cfg)
	case BackendServerless:
		return NewRemoteStore(cfg)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}
