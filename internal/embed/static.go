package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// StaticEmbedder produces deterministic embeddings derived from a hash of
// the text. It needs no network and gives identical text identical
// vectors, which is all the reconciliation pipeline requires for offline
// use and tests. It is not semantically meaningful.
type StaticEmbedder struct {
	dimensions int
}

// NewStaticEmbedder creates a deterministic offline embedder.
func NewStaticEmbedder(dimensions int) (*StaticEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &StaticEmbedder{dimensions: dimensions}, nil
}

// Embed derives a unit vector from an expanding hash of the text.
func (s *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, s.dimensions)
	seed := sha256.Sum256([]byte(text))
	block := seed

	var norm float64
	for i := range vec {
		if off := i % 8; off == 0 && i > 0 {
			block = sha256.Sum256(block[:])
		}
		bits := binary.BigEndian.Uint32(block[(i%8)*4:])
		// Map to [-1, 1)
		v := float64(bits)/float64(math.MaxUint32)*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch derives vectors for all texts in order.
func (s *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dimensions returns the embedding dimensionality.
func (s *StaticEmbedder) Dimensions() int { return s.dimensions }

// ModelName returns the model identifier.
func (s *StaticEmbedder) ModelName() string {
	return fmt.Sprintf("static-%d", s.dimensions)
}

// Available always reports true; no network is involved.
func (s *StaticEmbedder) Available(ctx context.Context) bool { return true }

// Close releases resources.
func (s *StaticEmbedder) Close() error { return nil }

var _ Embedder = (*StaticEmbedder)(nil)
