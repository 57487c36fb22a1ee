package index

import (
	"context"
	"log/slog"

	"github.com/docdex/docdex/internal/ledger"
	"github.com/docdex/docdex/internal/store"
)

// Report describes divergence between the ledger and the vector store.
type Report struct {
	// MissingVectors are ledger keys with no vector behind them. The
	// crash-ordering contract makes these the expected failure artifact:
	// a run interrupted between vector delete and ledger delete.
	MissingVectors []string
	// UntrackedVectors are vector ids the ledger has no memory of.
	// Nothing would ever clean these up, so they indicate a real bug or
	// external writes to the store.
	UntrackedVectors []string
	LedgerKeys       int
	VectorIDs        int
}

// Consistent reports whether the two stores agree.
func (r *Report) Consistent() bool {
	return len(r.MissingVectors) == 0 && len(r.UntrackedVectors) == 0
}

// ConsistencyChecker compares ledger contents against the vector store
// and can repair divergence.
type ConsistencyChecker struct {
	ledger  *ledger.Ledger
	vectors store.VectorStore
	logger  *slog.Logger
}

// NewConsistencyChecker creates a checker over an opened ledger and store.
func NewConsistencyChecker(l *ledger.Ledger, vs store.VectorStore, logger *slog.Logger) *ConsistencyChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsistencyChecker{ledger: l, vectors: vs, logger: logger}
}

// Check computes the divergence report without mutating anything.
func (c *ConsistencyChecker) Check(ctx context.Context) (*Report, error) {
	keys, err := c.ledger.AllKeys(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := c.vectors.AllIDs(ctx)
	if err != nil {
		return nil, err
	}

	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	report := &Report{LedgerKeys: len(keys), VectorIDs: len(ids)}
	for _, k := range keys {
		if _, ok := idSet[k]; !ok {
			report.MissingVectors = append(report.MissingVectors, k)
		}
	}
	for _, id := range ids {
		if _, ok := keySet[id]; !ok {
			report.UntrackedVectors = append(report.UntrackedVectors, id)
		}
	}
	return report, nil
}

// Repair restores the invariant that a ledger entry exists if and only
// if its vector does. Ledger keys without vectors are dropped so the
// next run re-detects the content as new; untracked vectors are deleted.
func (c *ConsistencyChecker) Repair(ctx context.Context) (*Report, error) {
	report, err := c.Check(ctx)
	if err != nil {
		return nil, err
	}
	if report.Consistent() {
		return report, nil
	}

	if len(report.MissingVectors) > 0 {
		c.logger.Warn("dropping ledger keys with no vector",
			slog.Int("count", len(report.MissingVectors)))
		if err := c.ledger.Delete(ctx, report.MissingVectors); err != nil {
			return report, err
		}
	}
	if len(report.UntrackedVectors) > 0 {
		c.logger.Warn("deleting vectors with no ledger entry",
			slog.Int("count", len(report.UntrackedVectors)))
		if err := c.vectors.Delete(ctx, report.UntrackedVectors); err != nil {
			return report, err
		}
	}
	return report, nil
}
