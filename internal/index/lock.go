package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// RunLock serializes reconciliation runs per group across processes.
// Concurrent runs on the same group would race on the shared ledger
// rows; runs on different groups are independent and take distinct locks.
type RunLock struct {
	lock *flock.Flock
}

// lockRetryDelay is how often a blocked acquirer re-polls the lock file.
const lockRetryDelay = 100 * time.Millisecond

// NewRunLock creates a lock for one group under dir. The lock file name
// is derived from a hash of the group so arbitrary source identifiers
// (paths, URLs) always yield a valid file name.
func NewRunLock(dir, group string) (*RunLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	sum := sha256.Sum256([]byte(group))
	name := hex.EncodeToString(sum[:8]) + ".lock"
	return &RunLock{lock: flock.New(filepath.Join(dir, name))}, nil
}

// Acquire blocks until the group lock is held or ctx is done.
func (r *RunLock) Acquire(ctx context.Context) error {
	ok, err := r.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("acquire run lock: not acquired")
	}
	return nil
}

// TryAcquire attempts the lock without blocking.
func (r *RunLock) TryAcquire() (bool, error) {
	return r.lock.TryLock()
}

// Release drops the lock. Safe to call when not held.
func (r *RunLock) Release() error {
	return r.lock.Unlock()
}
