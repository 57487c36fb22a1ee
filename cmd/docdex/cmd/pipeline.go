package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docdex/docdex/internal/chunk"
	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/embed"
	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/ledger"
	"github.com/docdex/docdex/internal/search"
	"github.com/docdex/docdex/internal/store"
)

// pipeline bundles the opened stores and the components built on them,
// so each command acquires and releases resources the same way.
type pipeline struct {
	cfg        *config.Config
	ledger     *ledger.Ledger
	vectors    store.VectorStore
	embedder   embed.Embedder
	runner     *index.Runner
	reconciler *index.Reconciler
	retriever  *search.Retriever
}

// openPipeline builds the full stack from configuration. Callers must
// Close on all exit paths.
func openPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	l, err := ledger.Open(cfg.LedgerPath(), cfg.Namespace())
	if err != nil {
		return nil, err
	}
	if err := l.CreateSchema(ctx); err != nil {
		_ = l.Close()
		return nil, err
	}

	vs, err := store.New(store.Config{
		Backend:    cfg.Store.Backend,
		Dimensions: cfg.Embeddings.Dimensions,
		Metric:     cfg.Store.Metric,
		Path:       cfg.VectorPath(),
		RemoteURL:  cfg.Store.RemoteURL,
		APIKey:     os.Getenv(cfg.Store.RemoteAPIKeyEnv),
		Collection: cfg.Collection,
	})
	if err != nil {
		_ = l.Close()
		return nil, err
	}

	embedder, err := embed.New(cfg.Embeddings)
	if err != nil {
		_ = vs.Close()
		_ = l.Close()
		return nil, err
	}

	chunker, err := chunk.NewWindowChunker(cfg.Chunking.WindowSize, cfg.Chunking.Overlap)
	if err != nil {
		_ = embedder.Close()
		_ = vs.Close()
		_ = l.Close()
		return nil, err
	}

	reconciler := index.NewReconciler(l, vs, embedder,
		index.WithBatchSize(cfg.Embeddings.BatchSize),
		index.WithLogger(slog.Default()))
	lockDir := filepath.Join(cfg.CacheDir, "locks")

	return &pipeline{
		cfg:        cfg,
		ledger:     l,
		vectors:    vs,
		embedder:   embedder,
		reconciler: reconciler,
		runner:     index.NewRunner(chunker, reconciler, lockDir, slog.Default()),
		retriever:  search.NewRetriever(embedder, vs),
	}, nil
}

// Close releases resources in reverse acquisition order.
func (p *pipeline) Close() {
	if err := p.embedder.Close(); err != nil {
		slog.Warn("close embedder", slog.String("error", err.Error()))
	}
	if err := p.vectors.Close(); err != nil {
		slog.Warn("close vector store", slog.String("error", err.Error()))
	}
	if err := p.ledger.Close(); err != nil {
		slog.Warn("close ledger", slog.String("error", err.Error()))
	}
}
