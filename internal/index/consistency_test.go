package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdex/docdex/internal/ledger"
	"github.com/docdex/docdex/internal/store"
)

func TestConsistencyChecker_CleanStateIsConsistent(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.reconciler.Reconcile(ctx, "doc-1", mkChunks("doc-1", "alpha", "beta"), CleanupFull, time.Now())
	require.NoError(t, err)

	report, err := NewConsistencyChecker(p.ledger, p.vectors, nil).Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 2, report.LedgerKeys)
	assert.Equal(t, 2, report.VectorIDs)
}

func TestConsistencyChecker_RepairDropsOrphanedLedgerKeys(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	// A ledger row with no vector behind it, as left by a crash between
	// the vector delete and the ledger delete.
	require.NoError(t, p.ledger.Upsert(ctx, []ledger.Entry{
		{Key: "orphan-key", Digest: "d", GroupID: "doc-1"},
	}, time.Now()))

	checker := NewConsistencyChecker(p.ledger, p.vectors, nil)
	report, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan-key"}, report.MissingVectors)

	_, err = checker.Repair(ctx)
	require.NoError(t, err)

	e, err := p.ledger.Get(ctx, "orphan-key")
	require.NoError(t, err)
	assert.Nil(t, e)

	report, err = checker.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestConsistencyChecker_RepairDeletesUntrackedVectors(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	vec, err := p.embedder.inner.Embed(ctx, "untracked")
	require.NoError(t, err)
	require.NoError(t, p.vectors.Upsert(ctx, []store.Item{
		{ID: "untracked-id", Vector: vec, Text: "untracked"},
	}))

	checker := NewConsistencyChecker(p.ledger, p.vectors, nil)
	report, err := checker.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"untracked-id"}, report.UntrackedVectors)

	n, err := p.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
