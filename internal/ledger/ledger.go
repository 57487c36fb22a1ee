// Package ledger persists the record of indexed chunks: which chunk ids
// have been written to the vector store, their content hash, their source
// group, and when a reconciliation run last observed them. The ledger is
// the durable memory that makes indexing incremental across restarts.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	dexerrors "github.com/docdex/docdex/internal/errors"
)

// maxBatchParams caps placeholders per statement, well under SQLite's
// default host-parameter limit.
const maxBatchParams = 500

// Entry is one ledger row: the identity and versioning metadata of an
// indexed chunk. The vector store owns the embedding; the ledger owns this.
type Entry struct {
	// Key is the chunk id.
	Key string
	// Digest is the content hash of the chunk text.
	Digest string
	// GroupID is the source-batch identifier the chunk belongs to.
	GroupID string
	// LastSeen is the logical timestamp of the last run that observed
	// this chunk.
	LastSeen time.Time
}

// Ledger is a namespaced, durable key-value record manager over SQLite.
// All operations are scoped to the namespace given at Open, so independent
// collections never collide on keys.
type Ledger struct {
	mu        sync.Mutex
	db        *sql.DB
	namespace string
	closed    bool
}

// Open opens (or creates) the ledger database at path, scoped to the given
// namespace. The handle must be released with Close on all exit paths.
func Open(path, namespace string) (*Ledger, error) {
	if namespace == "" {
		return nil, dexerrors.New(dexerrors.ErrCodeInvalidInput, "ledger namespace must not be empty", nil)
	}

	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, dexerrors.LedgerError(fmt.Sprintf("create ledger directory: %v", err), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dexerrors.LedgerError(fmt.Sprintf("open ledger database: %v", err), err)
	}

	// Single writer; SQLite serializes writes anyway and this prevents
	// lock contention inside the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, dexerrors.LedgerError(fmt.Sprintf("set pragma: %v", err), err)
		}
	}

	return &Ledger{db: db, namespace: namespace}, nil
}

// Namespace returns the namespace this ledger is scoped to.
func (l *Ledger) Namespace() string { return l.namespace }

// CreateSchema initializes the durable store. Idempotent; safe to call on
// every startup.
func (l *Ledger) CreateSchema(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return dexerrors.LedgerError("ledger is closed", nil)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		namespace  TEXT    NOT NULL,
		key        TEXT    NOT NULL,
		digest     TEXT    NOT NULL,
		group_id   TEXT    NOT NULL,
		last_seen  INTEGER NOT NULL,
		PRIMARY KEY (namespace, key)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_group
		ON ledger_entries (namespace, group_id, last_seen);
	`

	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return dexerrors.LedgerError(fmt.Sprintf("create schema: %v", err), err)
	}
	return nil
}

// Upsert writes entries with last_seen set to ts. Existing rows for the
// same key are replaced (digest and group refresh; last_seen touches).
func (l *Ledger) Upsert(ctx context.Context, entries []Entry, ts time.Time) error {
	if len(entries) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return dexerrors.LedgerError("ledger is closed", nil)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return dexerrors.LedgerError(fmt.Sprintf("begin transaction: %v", err), err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries (namespace, key, digest, group_id, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET
			digest = excluded.digest,
			group_id = excluded.group_id,
			last_seen = excluded.last_seen`)
	if err != nil {
		return dexerrors.LedgerError(fmt.Sprintf("prepare upsert: %v", err), err)
	}
	defer stmt.Close()

	nanos := ts.UnixNano()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, l.namespace, e.Key, e.Digest, e.GroupID, nanos); err != nil {
			return dexerrors.LedgerError(fmt.Sprintf("upsert key %s: %v", e.Key, err), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dexerrors.LedgerError(fmt.Sprintf("commit upsert: %v", err), err)
	}
	return nil
}

// GetDigests returns the stored content hash for each of the given keys
// that exists in this namespace. Keys with no entry are absent from the map.
func (l *Ledger) GetDigests(ctx context.Context, keys []string) (map[string]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, dexerrors.LedgerError("ledger is closed", nil)
	}

	digests := make(map[string]string, len(keys))
	for start := 0; start < len(keys); start += maxBatchParams {
		end := start + maxBatchParams
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		query := fmt.Sprintf(
			`SELECT key, digest FROM ledger_entries
			 WHERE namespace = ? AND key IN (%s)`,
			placeholders(len(batch)))

		args := make([]any, 0, len(batch)+1)
		args = append(args, l.namespace)
		for _, k := range batch {
			args = append(args, k)
		}

		rows, err := l.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, dexerrors.LedgerError(fmt.Sprintf("query digests: %v", err), err)
		}

		for rows.Next() {
			var key, digest string
			if err := rows.Scan(&key, &digest); err != nil {
				_ = rows.Close()
				return nil, dexerrors.LedgerError(fmt.Sprintf("scan digest row: %v", err), err)
			}
			digests[key] = digest
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, dexerrors.LedgerError(fmt.Sprintf("iterate digest rows: %v", err), err)
		}
		_ = rows.Close()
	}

	return digests, nil
}

// ListStale returns all keys in a group whose last_seen is strictly older
// than before. These are the deletion candidates for a full-cleanup run.
func (l *Ledger) ListStale(ctx context.Context, groupID string, before time.Time) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, dexerrors.LedgerError("ledger is closed", nil)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT key FROM ledger_entries
		WHERE namespace = ? AND group_id = ? AND last_seen < ?
		ORDER BY key`,
		l.namespace, groupID, before.UnixNano())
	if err != nil {
		return nil, dexerrors.LedgerError(fmt.Sprintf("list stale keys: %v", err), err)
	}
	defer rows.Close()

	return scanKeys(rows)
}

// ListKeys returns all keys in a group.
func (l *Ledger) ListKeys(ctx context.Context, groupID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, dexerrors.LedgerError("ledger is closed", nil)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT key FROM ledger_entries
		WHERE namespace = ? AND group_id = ?
		ORDER BY key`,
		l.namespace, groupID)
	if err != nil {
		return nil, dexerrors.LedgerError(fmt.Sprintf("list group keys: %v", err), err)
	}
	defer rows.Close()

	return scanKeys(rows)
}

// AllKeys returns every key in the namespace. Used by consistency checks.
func (l *Ledger) AllKeys(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, dexerrors.LedgerError("ledger is closed", nil)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT key FROM ledger_entries WHERE namespace = ? ORDER BY key`,
		l.namespace)
	if err != nil {
		return nil, dexerrors.LedgerError(fmt.Sprintf("list all keys: %v", err), err)
	}
	defer rows.Close()

	return scanKeys(rows)
}

// Get returns the full entry for a key, or nil if absent.
func (l *Ledger) Get(ctx context.Context, key string) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, dexerrors.LedgerError("ledger is closed", nil)
	}

	var e Entry
	var nanos int64
	err := l.db.QueryRowContext(ctx, `
		SELECT key, digest, group_id, last_seen FROM ledger_entries
		WHERE namespace = ? AND key = ?`,
		l.namespace, key).Scan(&e.Key, &e.Digest, &e.GroupID, &nanos)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dexerrors.LedgerError(fmt.Sprintf("get key %s: %v", key, err), err)
	}
	e.LastSeen = time.Unix(0, nanos)
	return &e, nil
}

// Delete removes the given keys from the namespace. Missing keys are not
// an error.
func (l *Ledger) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return dexerrors.LedgerError("ledger is closed", nil)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return dexerrors.LedgerError(fmt.Sprintf("begin transaction: %v", err), err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(keys); start += maxBatchParams {
		end := start + maxBatchParams
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		query := fmt.Sprintf(
			`DELETE FROM ledger_entries WHERE namespace = ? AND key IN (%s)`,
			placeholders(len(batch)))

		args := make([]any, 0, len(batch)+1)
		args = append(args, l.namespace)
		for _, k := range batch {
			args = append(args, k)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return dexerrors.LedgerError(fmt.Sprintf("delete keys: %v", err), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dexerrors.LedgerError(fmt.Sprintf("commit delete: %v", err), err)
	}
	return nil
}

// Count returns the number of entries in the namespace.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, dexerrors.LedgerError("ledger is closed", nil)
	}

	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE namespace = ?`,
		l.namespace).Scan(&n)
	if err != nil {
		return 0, dexerrors.LedgerError(fmt.Sprintf("count entries: %v", err), err)
	}
	return n, nil
}

// Close releases the database handle. Safe to call more than once.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

func scanKeys(rows *sql.Rows) ([]string, error) {
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, dexerrors.LedgerError(fmt.Sprintf("scan key row: %v", err), err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, dexerrors.LedgerError(fmt.Sprintf("iterate key rows: %v", err), err)
	}
	return keys, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
