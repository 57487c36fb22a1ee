// Package watch re-runs indexing when files under a directory change.
// Filesystem events arrive in bursts (editors write, rename, chmod), so
// changes are debounced into a single indexing run.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period required before a run triggers.
const DefaultDebounce = 500 * time.Millisecond

// Watcher observes a directory tree and invokes a callback after change
// bursts settle.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func(ctx context.Context) error
	logger   *slog.Logger
}

// New creates a watcher over root. onChange runs after each settled
// burst of filesystem changes; its error is logged, not fatal, so a
// transient indexing failure does not stop the watch.
func New(root string, debounce time.Duration, onChange func(ctx context.Context) error, logger *slog.Logger) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{root: root, debounce: debounce, onChange: onChange, logger: logger}, nil
}

// Run watches until ctx is done. Newly created directories are added to
// the watch set as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						w.logger.Warn("watch new directory", slog.String("error", err.Error()))
					}
				}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.logger.Info("changes settled, reindexing", slog.String("root", w.root))
			if err := w.onChange(ctx); err != nil {
				w.logger.Error("reindex after change failed", slog.String("error", err.Error()))
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// addTree registers root and every non-hidden subdirectory.
func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// relevant filters out events that never change indexed content.
func relevant(event fsnotify.Event) bool {
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
