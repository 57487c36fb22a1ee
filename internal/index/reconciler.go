// Package index implements incremental reconciliation between a chunk
// ledger and a vector store: given the chunks a source currently
// produces, it embeds and upserts only new or changed content, refreshes
// last-seen marks for the rest, and deletes what the cleanup mode says
// is stale.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docdex/docdex/internal/chunk"
	dexerrors "github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/ledger"
	"github.com/docdex/docdex/internal/store"
)

// CleanupMode selects the deletion policy for a reconciliation run.
type CleanupMode string

const (
	// CleanupFull deletes every key in the group not re-observed by this
	// run. Use when the run carries the complete current state of the group.
	CleanupFull CleanupMode = "full"
	// CleanupIncremental performs no group-wide deletion; the run is a
	// partial addition and other members of the group are managed elsewhere.
	CleanupIncremental CleanupMode = "incremental"
	// CleanupNone never deletes; the collection is append-only.
	CleanupNone CleanupMode = "none"
)

// ParseCleanupMode validates a mode string from config or CLI flags.
func ParseCleanupMode(s string) (CleanupMode, error) {
	switch CleanupMode(s) {
	case CleanupFull, CleanupIncremental, CleanupNone:
		return CleanupMode(s), nil
	default:
		return "", fmt.Errorf("unknown cleanup mode %q (want full, incremental, or none)", s)
	}
}

// Summary reports what one reconciliation run durably committed.
type Summary struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Deleted int `json:"deleted"`
}

// Embedder is the slice of the embedding capability the reconciler needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithBatchSize sets how many chunks are embedded and committed together.
func WithBatchSize(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithConcurrency bounds how many embed batches run in parallel.
func WithConcurrency(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Reconciler drives the ledger and the vector store. It owns neither,
// but it is the only component that mutates both, and it preserves the
// ordering that keeps them consistent across crashes: a vector upsert
// precedes the ledger row that records it, and a vector delete precedes
// the ledger delete for the same keys.
type Reconciler struct {
	ledger      *ledger.Ledger
	vectors     store.VectorStore
	embedder    Embedder
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// NewReconciler creates a reconciler over an opened ledger and store.
func NewReconciler(l *ledger.Ledger, vs store.VectorStore, e Embedder, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		ledger:      l,
		vectors:     vs,
		embedder:    e,
		batchSize:   32,
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile synchronizes one group's chunks with the index.
//
// Each batch of new-or-changed chunks is committed atomically in order:
// embed, vector upsert, ledger upsert. Unchanged chunks are touched so
// cleanup sees them as live. Under full cleanup, group keys whose
// last_seen predates this run are deleted from the store first and the
// ledger second.
//
// Concurrent calls for the same group are not safe; callers serialize
// runs per group (see RunLock). The returned summary reflects exactly
// what was durably committed, even when an error aborts the run early.
func (r *Reconciler) Reconcile(ctx context.Context, group string, chunks []chunk.Chunk, mode CleanupMode, now time.Time) (*Summary, error) {
	if _, err := ParseCleanupMode(string(mode)); err != nil {
		return &Summary{}, dexerrors.New(dexerrors.ErrCodeInvalidInput, err.Error(), nil)
	}

	incoming := dedupeChunks(chunks)
	keys := make([]string, len(incoming))
	for i, c := range incoming {
		keys[i] = c.ID
	}

	existing, err := r.ledger.GetDigests(ctx, keys)
	if err != nil {
		return &Summary{}, err
	}

	var changed, unchanged []chunk.Chunk
	for _, c := range incoming {
		if digest, ok := existing[c.ID]; ok && digest == c.Digest {
			unchanged = append(unchanged, c)
		} else {
			changed = append(changed, c)
		}
	}

	summary := &Summary{Skipped: len(unchanged)}

	added, err := r.upsertChanged(ctx, group, changed, now)
	summary.Added = added
	if err != nil {
		r.logger.Error("reconcile aborted during upsert",
			slog.String("group", group),
			slog.Int("added", added),
			slog.String("error", err.Error()))
		return summary, err
	}

	if err := r.touch(ctx, group, unchanged, now); err != nil {
		return summary, err
	}

	if mode == CleanupFull {
		deleted, err := r.deleteStale(ctx, group, now)
		summary.Deleted = deleted
		if err != nil {
			return summary, err
		}
	}

	r.logger.Info("reconcile complete",
		slog.String("group", group),
		slog.String("mode", string(mode)),
		slog.Int("added", summary.Added),
		slog.Int("skipped", summary.Skipped),
		slog.Int("deleted", summary.Deleted))
	return summary, nil
}

// upsertChanged embeds and commits new-or-changed chunks in batches.
// Batches run in parallel; each one becomes durable as a unit, so a
// failure in one batch never corrupts another. Returns the number of
// chunks durably committed.
func (r *Reconciler) upsertChanged(ctx context.Context, group string, changed []chunk.Chunk, now time.Time) (int, error) {
	if len(changed) == 0 {
		return 0, nil
	}

	var (
		mu    sync.Mutex
		added int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for start := 0; start < len(changed); start += r.batchSize {
		end := start + r.batchSize
		if end > len(changed) {
			end = len(changed)
		}
		batch := changed[start:end]

		g.Go(func() error {
			if err := r.commitBatch(gctx, group, batch, now); err != nil {
				return err
			}
			mu.Lock()
			added += len(batch)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return added, err
}

// commitBatch makes one batch durable: embed, then vector upsert, then
// ledger upsert. The ledger write comes last so a crash at any point
// leaves no ledger row referencing a vector that was never written.
func (r *Reconciler) commitBatch(ctx context.Context, group string, batch []chunk.Chunk, now time.Time) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(batch) {
		return dexerrors.EmbeddingError(
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vecs), len(batch)), nil)
	}

	items := make([]store.Item, len(batch))
	for i, c := range batch {
		items[i] = store.Item{ID: c.ID, Vector: vecs[i], Text: c.Text, Metadata: c.Metadata}
	}
	if err := r.vectors.Upsert(ctx, items); err != nil {
		return err
	}

	entries := make([]ledger.Entry, len(batch))
	for i, c := range batch {
		entries[i] = ledger.Entry{Key: c.ID, Digest: c.Digest, GroupID: group}
	}
	return r.ledger.Upsert(ctx, entries, now)
}

// touch refreshes last_seen for unchanged chunks so cleanup keeps them.
func (r *Reconciler) touch(ctx context.Context, group string, unchanged []chunk.Chunk, now time.Time) error {
	if len(unchanged) == 0 {
		return nil
	}
	entries := make([]ledger.Entry, len(unchanged))
	for i, c := range unchanged {
		entries[i] = ledger.Entry{Key: c.ID, Digest: c.Digest, GroupID: group}
	}
	return r.ledger.Upsert(ctx, entries, now)
}

// deleteStale removes group keys not touched by this run, vectors first.
// A crash between the two deletes leaves an orphaned ledger row, which
// the next full run lists as stale again and retries.
func (r *Reconciler) deleteStale(ctx context.Context, group string, now time.Time) (int, error) {
	stale, err := r.ledger.ListStale(ctx, group, now)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := r.vectors.Delete(ctx, stale); err != nil {
		return 0, err
	}
	if err := r.ledger.Delete(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// dedupeChunks drops repeated ids within one run, keeping the first
// occurrence. Identical windows within a source share an id, so a
// duplicate is the same content, not a conflict.
func dedupeChunks(chunks []chunk.Chunk) []chunk.Chunk {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
