package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// payload is the stored content for one chunk id.
type payload struct {
	Text     string
	Metadata map[string]string
}

// localMeta is the gob sidecar persisted next to the graph file.
type localMeta struct {
	Dimensions int
	Metric     string
	IDMap      map[string]uint64
	NextKey    uint64
	Payloads   map[string]payload
}

// LocalStore implements VectorStore on a pure Go HNSW graph persisted to
// disk. Each mutating call writes through to disk before returning, so a
// ledger write that follows an Upsert always refers to a durable vector.
//
// Deletion is lazy: removed nodes stay in the graph as orphans and are
// filtered out of results. Search oversamples to compensate.
type LocalStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]

	path       string
	dimensions int
	metric     string
	m          int
	efSearch   int

	// ID mapping (string <-> uint64)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	payloads map[string]payload

	closed bool
}

// NewLocalStore opens or creates a local store at cfg.Path.
// A persisted collection built with different dimensions or a different
// metric is discarded and rebuilt empty; existing entries then show up as
// missing and get re-upserted on the next reconcile run.
func NewLocalStore(cfg Config) (*LocalStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	s := &LocalStore{
		path:       cfg.Path,
		dimensions: cfg.Dimensions,
		metric:     cfg.Metric,
		m:          cfg.M,
		efSearch:   cfg.EfSearch,
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
		payloads:   make(map[string]payload),
	}
	s.graph = s.newGraph()

	if cfg.Path == "" {
		return s, nil
	}

	dims, metric, err := readLocalCollection(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("inspect local collection: %w", err)
	}
	if dims == 0 {
		return s, nil // fresh collection
	}

	if dims != cfg.Dimensions || metric != cfg.Metric {
		slog.Warn("recreating local collection",
			slog.Int("have_dimensions", dims),
			slog.Int("want_dimensions", cfg.Dimensions),
			slog.String("have_metric", metric),
			slog.String("want_metric", cfg.Metric))
		if err := removeLocalCollection(cfg.Path); err != nil {
			return nil, fmt.Errorf("recreate local collection: %w", err)
		}
		return s, nil
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("load local collection: %w", err)
	}
	return s, nil
}

func (s *LocalStore) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	switch s.metric {
	case "l2":
		g.Distance = hnsw.EuclideanDistance
	default:
		g.Distance = hnsw.CosineDistance
	}
	g.M = s.m
	g.EfSearch = s.efSearch
	g.Ml = 0.25
	return g
}

// Upsert inserts or replaces vectors and their payloads, then persists.
func (s *LocalStore) Upsert(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, it := range items {
		if len(it.Vector) != s.dimensions {
			return ErrDimensionMismatch{Expected: s.dimensions, Got: len(it.Vector)}
		}
	}

	for _, it := range items {
		// Replacing an id orphans its old graph node rather than deleting
		// it; coder/hnsw misbehaves when the last node is removed.
		if oldKey, exists := s.idMap[it.ID]; exists {
			delete(s.keyMap, oldKey)
			delete(s.idMap, it.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(it.Vector))
		copy(vec, it.Vector)
		if s.metric == "cos" {
			normalizeInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[it.ID] = key
		s.keyMap[key] = it.ID
		s.payloads[it.ID] = payload{Text: it.Text, Metadata: it.Metadata}
	}

	return s.saveLocked()
}

// Delete removes ids lazily and persists. Unknown ids are ignored.
func (s *LocalStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.payloads, id)
		}
	}

	return s.saveLocked()
}

// Contains reports whether an id exists.
func (s *LocalStore) Contains(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, fmt.Errorf("store is closed")
	}
	_, exists := s.idMap[id]
	return exists, nil
}

// AllIDs returns every live id.
func (s *LocalStore) AllIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids, nil
}

// Search returns the k nearest live items to the query vector.
func (s *LocalStore) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.dimensions {
		return nil, ErrDimensionMismatch{Expected: s.dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []SearchResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.metric == "cos" {
		normalizeInPlace(q)
	}

	// Oversample to cover lazily deleted orphans still in the graph.
	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(q, k+orphans)

	results := make([]SearchResult, 0, k)
	for _, node := range nodes {
		id, live := s.keyMap[node.Key]
		if !live {
			continue
		}
		dist := s.graph.Distance(q, node.Value)
		p := s.payloads[id]
		results = append(results, SearchResult{
			ID:       id,
			Text:     p.Text,
			Metadata: p.Metadata,
			Score:    distanceToScore(dist, s.metric),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Count returns the number of live vectors.
func (s *LocalStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}
	return len(s.idMap), nil
}

// Close persists and releases the store.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	err := s.saveLocked()
	s.closed = true
	s.graph = nil
	return err
}

// saveLocked writes the graph and sidecar atomically (temp file + rename).
// Callers hold s.mu. A memory-only store (empty path) persists nothing.
func (s *LocalStore) saveLocked() error {
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create collection directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close graph file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename graph file: %w", err)
	}

	return s.saveMetaLocked()
}

func (s *LocalStore) saveMetaLocked() error {
	metaPath := s.path + ".meta"
	tmpPath := metaPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create sidecar file: %w", err)
	}

	meta := localMeta{
		Dimensions: s.dimensions,
		Metric:     s.metric,
		IDMap:      s.idMap,
		NextKey:    s.nextKey,
		Payloads:   s.payloads,
	}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close sidecar file: %w", err)
	}
	return os.Rename(tmpPath, metaPath)
}

func (s *LocalStore) load() error {
	f, err := os.Open(s.path + ".meta")
	if err != nil {
		return fmt.Errorf("open sidecar: %w", err)
	}
	defer f.Close()

	var meta localMeta
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return fmt.Errorf("decode sidecar: %w", err)
	}

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.payloads = meta.Payloads
	if s.idMap == nil {
		s.idMap = make(map[string]uint64)
	}
	if s.payloads == nil {
		s.payloads = make(map[string]payload)
	}
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	gf, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open graph file: %w", err)
	}
	defer gf.Close()

	// coder/hnsw Import needs an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(gf)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

// readLocalCollection reads dimensions and metric from a persisted
// collection's sidecar. Returns (0, "", nil) when none exists.
func readLocalCollection(path string) (int, string, error) {
	f, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, "", nil
		}
		return 0, "", err
	}
	defer f.Close()

	var meta localMeta
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return 0, "", fmt.Errorf("decode sidecar: %w", err)
	}
	return meta.Dimensions, meta.Metric, nil
}

func removeLocalCollection(path string) error {
	for _, p := range []string{path, path + ".meta"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

var _ VectorStore = (*LocalStore)(nil)

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps a distance to a similarity score in [0,1].
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		// Cosine distance ranges 0 (identical) to 2 (opposite).
		return 1.0 - distance/2.0
	}
}
