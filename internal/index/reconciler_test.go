package index

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdex/docdex/internal/chunk"
	"github.com/docdex/docdex/internal/embed"
	dexerrors "github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/ledger"
	"github.com/docdex/docdex/internal/store"
)

const testDims = 8

// countingEmbedder wraps the deterministic embedder and counts how many
// texts were actually embedded, to prove unchanged content is skipped.
type countingEmbedder struct {
	inner    *embed.StaticEmbedder
	embedded atomic.Int64
	failWith error
}

func newCountingEmbedder(t *testing.T) *countingEmbedder {
	t.Helper()
	inner, err := embed.NewStaticEmbedder(testDims)
	require.NoError(t, err)
	return &countingEmbedder{inner: inner}
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.failWith != nil {
		return nil, c.failWith
	}
	c.embedded.Add(int64(len(texts)))
	return c.inner.EmbedBatch(ctx, texts)
}

type pipeline struct {
	ledger     *ledger.Ledger
	vectors    store.VectorStore
	embedder   *countingEmbedder
	reconciler *Reconciler
}

func newTestPipeline(t *testing.T) *pipeline {
	t.Helper()

	l, err := ledger.Open("", "local/test")
	require.NoError(t, err)
	require.NoError(t, l.CreateSchema(context.Background()))
	t.Cleanup(func() { _ = l.Close() })

	vs, err := store.NewLocalStore(store.Config{Backend: store.BackendLocal, Dimensions: testDims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	e := newCountingEmbedder(t)
	return &pipeline{
		ledger:     l,
		vectors:    vs,
		embedder:   e,
		reconciler: NewReconciler(l, vs, e, WithBatchSize(2)),
	}
}

// mkChunks builds chunks with real ids and digests for one source.
func mkChunks(source string, texts ...string) []chunk.Chunk {
	chunks := make([]chunk.Chunk, len(texts))
	for i, text := range texts {
		digest := chunk.Fingerprint(text)
		chunks[i] = chunk.Chunk{
			ID:       chunk.NewID(source, digest),
			Source:   source,
			Position: i,
			Text:     text,
			Digest:   digest,
			Metadata: map[string]string{chunk.MetaSource: source},
		}
	}
	return chunks
}

func TestReconcile_FirstRunAddsEverything(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	chunks := mkChunks("doc-1", "alpha", "beta", "gamma")
	summary, err := p.reconciler.Reconcile(ctx, "doc-1", chunks, CleanupFull, time.Now())
	require.NoError(t, err)

	assert.Equal(t, &Summary{Added: 3, Skipped: 0, Deleted: 0}, summary)

	n, err := p.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	ln, err := p.ledger.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, ln)
}

func TestReconcile_IdenticalRerunIsIdempotent(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	chunks := mkChunks("doc-1", "alpha", "beta", "gamma")
	_, err := p.reconciler.Reconcile(ctx, "doc-1", chunks, CleanupFull, time.Unix(100, 0))
	require.NoError(t, err)
	firstEmbeds := p.embedder.embedded.Load()

	summary, err := p.reconciler.Reconcile(ctx, "doc-1", chunks, CleanupFull, time.Unix(200, 0))
	require.NoError(t, err)

	assert.Equal(t, &Summary{Added: 0, Skipped: 3, Deleted: 0}, summary)
	// Unchanged content is never re-embedded
	assert.Equal(t, firstEmbeds, p.embedder.embedded.Load())
}

func TestReconcile_FullCleanupDeletesReplacedContent(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	c1 := mkChunks("doc-1", "old one", "old two")
	_, err := p.reconciler.Reconcile(ctx, "doc-1", c1, CleanupFull, time.Unix(100, 0))
	require.NoError(t, err)

	c2 := mkChunks("doc-1", "new one", "new two", "new three")
	summary, err := p.reconciler.Reconcile(ctx, "doc-1", c2, CleanupFull, time.Unix(200, 0))
	require.NoError(t, err)

	assert.Equal(t, &Summary{Added: 3, Skipped: 0, Deleted: 2}, summary)

	// Store contains exactly the ids of c2
	ids, err := p.vectors.AllIDs(ctx)
	require.NoError(t, err)
	want := make([]string, len(c2))
	for i, c := range c2 {
		want[i] = c.ID
	}
	assert.ElementsMatch(t, want, ids)

	// Ledger has no memory of c1
	for _, c := range c1 {
		e, err := p.ledger.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Nil(t, e)
	}
}

func TestReconcile_IdenticalTextAcrossSourcesStoresTwoVectors(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	a := mkChunks("doc-a", "identical text")
	b := mkChunks("doc-b", "identical text")

	_, err := p.reconciler.Reconcile(ctx, "doc-a", a, CleanupFull, time.Now())
	require.NoError(t, err)
	_, err = p.reconciler.Reconcile(ctx, "doc-b", b, CleanupFull, time.Now())
	require.NoError(t, err)

	n, err := p.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReconcile_IncrementalNeverDeletesSiblings(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	all := mkChunks("group-1", "part one", "part two", "part three")
	_, err := p.reconciler.Reconcile(ctx, "group-1", all, CleanupNone, time.Unix(100, 0))
	require.NoError(t, err)

	// Re-index only a subset of the group incrementally
	subset := all[:1]
	summary, err := p.reconciler.Reconcile(ctx, "group-1", subset, CleanupIncremental, time.Unix(200, 0))
	require.NoError(t, err)

	assert.Zero(t, summary.Deleted)
	n, err := p.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestReconcile_NoneModeOnlyGrows(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.reconciler.Reconcile(ctx, "doc-1", mkChunks("doc-1", "first"), CleanupNone, time.Unix(100, 0))
	require.NoError(t, err)
	summary, err := p.reconciler.Reconcile(ctx, "doc-1", mkChunks("doc-1", "second"), CleanupNone, time.Unix(200, 0))
	require.NoError(t, err)

	assert.Zero(t, summary.Deleted)
	n, err := p.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReconcile_RecoversAfterCrashBeforeLedgerWrite(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	chunks := mkChunks("doc-1", "survivor")

	// Simulate a crash after the vector upsert but before the ledger
	// write: the vector exists, the ledger has no record.
	vec, err := p.embedder.inner.Embed(ctx, chunks[0].Text)
	require.NoError(t, err)
	require.NoError(t, p.vectors.Upsert(ctx, []store.Item{
		{ID: chunks[0].ID, Vector: vec, Text: chunks[0].Text},
	}))

	summary, err := p.reconciler.Reconcile(ctx, "doc-1", chunks, CleanupFull, time.Now())
	require.NoError(t, err)

	// The chunk is re-detected as new and re-upserted
	assert.Equal(t, 1, summary.Added)
	e, err := p.ledger.Get(ctx, chunks[0].ID)
	require.NoError(t, err)
	require.NotNil(t, e)
}

func TestReconcile_EmbeddingFailurePreservesLedgerState(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	chunks := mkChunks("doc-1", "alpha", "beta")
	p.embedder.failWith = dexerrors.EmbeddingError("endpoint down", nil)

	summary, err := p.reconciler.Reconcile(ctx, "doc-1", chunks, CleanupFull, time.Unix(100, 0))
	require.Error(t, err)
	assert.True(t, dexerrors.IsRetryable(err))
	assert.Zero(t, summary.Added)

	ln, err := p.ledger.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, ln)

	// The retried run succeeds in full
	p.embedder.failWith = nil
	summary, err = p.reconciler.Reconcile(ctx, "doc-1", chunks, CleanupFull, time.Unix(200, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Added)
}

func TestReconcile_DuplicateChunksInOneRunCollapse(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	chunks := append(mkChunks("doc-1", "same window"), mkChunks("doc-1", "same window")...)
	summary, err := p.reconciler.Reconcile(ctx, "doc-1", chunks, CleanupFull, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Added)
	n, err := p.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReconcile_EmptyChunkSetUnderFullCleanupDrainsGroup(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.reconciler.Reconcile(ctx, "doc-1", mkChunks("doc-1", "a", "b"), CleanupFull, time.Unix(100, 0))
	require.NoError(t, err)

	summary, err := p.reconciler.Reconcile(ctx, "doc-1", nil, CleanupFull, time.Unix(200, 0))
	require.NoError(t, err)

	assert.Equal(t, &Summary{Added: 0, Skipped: 0, Deleted: 2}, summary)
	n, err := p.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcile_ManyBatchesCommitAll(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = chunk.Fingerprint(string(rune('a' + i))) // distinct texts
	}
	chunks := mkChunks("doc-1", texts...)

	// Batch size 2 forces many parallel batches
	summary, err := p.reconciler.Reconcile(ctx, "doc-1", chunks, CleanupFull, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 25, summary.Added)

	n, err := p.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestParseCleanupMode(t *testing.T) {
	for _, valid := range []string{"full", "incremental", "none"} {
		mode, err := ParseCleanupMode(valid)
		require.NoError(t, err)
		assert.Equal(t, CleanupMode(valid), mode)
	}

	_, err := ParseCleanupMode("aggressive")
	assert.Error(t, err)

	p := newTestPipeline(t)
	_, err = p.reconciler.Reconcile(context.Background(), "g", nil, CleanupMode("bogus"), time.Now())
	assert.Error(t, err)
}
