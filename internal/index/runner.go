package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/docdex/docdex/internal/chunk"
	dexerrors "github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/source"
)

// GroupFailure records a per-group error that did not abort the run.
type GroupFailure struct {
	Group string
	Err   error
}

// RunReport aggregates one indexing run over many documents.
type RunReport struct {
	Groups   int
	Totals   Summary
	Failures []GroupFailure
}

// Runner turns documents into chunks and reconciles each document as its
// own group, serialized by a per-group file lock. Per-document failures
// are isolated; fatal (ledger or backend) failures abort the whole run.
type Runner struct {
	chunker    *chunk.WindowChunker
	reconciler *Reconciler
	lockDir    string
	logger     *slog.Logger
}

// NewRunner creates a runner. lockDir holds the per-group lock files.
func NewRunner(chunker *chunk.WindowChunker, reconciler *Reconciler, lockDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		chunker:    chunker,
		reconciler: reconciler,
		lockDir:    lockDir,
		logger:     logger,
	}
}

// IndexSource indexes every document the source yields.
func (r *Runner) IndexSource(ctx context.Context, src source.Source, mode CleanupMode) (*RunReport, error) {
	docs, err := src.Documents(ctx)
	if err != nil {
		return nil, err
	}
	return r.IndexDocuments(ctx, docs, mode)
}

// IndexDocuments reconciles each document in turn. The report's totals
// reflect exactly what was durably committed, including for groups that
// later failed.
func (r *Runner) IndexDocuments(ctx context.Context, docs []source.Document, mode CleanupMode) (*RunReport, error) {
	report := &RunReport{Groups: len(docs)}

	for _, doc := range docs {
		summary, err := r.indexOne(ctx, doc, mode)
		if summary != nil {
			report.Totals.Added += summary.Added
			report.Totals.Skipped += summary.Skipped
			report.Totals.Deleted += summary.Deleted
		}
		if err == nil {
			continue
		}
		if dexerrors.IsFatal(err) || ctx.Err() != nil {
			return report, err
		}
		r.logger.Warn("document failed, continuing run",
			slog.String("source", doc.Source),
			slog.String("error", err.Error()))
		report.Failures = append(report.Failures, GroupFailure{Group: doc.Source, Err: err})
	}

	return report, nil
}

func (r *Runner) indexOne(ctx context.Context, doc source.Document, mode CleanupMode) (*Summary, error) {
	lock, err := NewRunLock(r.lockDir, doc.Source)
	if err != nil {
		return nil, err
	}
	if err := lock.Acquire(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			r.logger.Warn("release run lock", slog.String("error", err.Error()))
		}
	}()

	chunks := r.chunker.Split(doc.Source, doc.Text, doc.Metadata)
	return r.reconciler.Reconcile(ctx, doc.Source, chunks, mode, time.Now())
}
