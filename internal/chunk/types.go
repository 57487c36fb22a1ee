// Package chunk splits document text into overlapping windows and derives
// content-addressed identities for them. Chunks are the unit of embedding,
// storage, and reconciliation.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
)

// Metadata keys present on every chunk.
const (
	// MetaSource is the identity of the source document.
	MetaSource = "source"
	// MetaPosition is the zero-based window index within the document.
	MetaPosition = "position"
)

// Chunk is a bounded text window derived from a source document.
// Immutable once created.
type Chunk struct {
	// ID is derived from (source, content digest); see NewID.
	ID string
	// Source identifies the document this chunk came from.
	Source string
	// Position is the window index within the document.
	Position int
	// Start and End are the character (rune) offsets of the window.
	Start int
	End   int
	// Text is the window content.
	Text string
	// Digest is the content fingerprint of Text.
	Digest string
	// Metadata carries provenance; always includes source and position.
	Metadata map[string]string
}

// Fingerprint computes the content hash of a chunk's text.
// Deterministic and collision-resistant (SHA-256), independent of process
// identity or time.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NewID derives the chunk identity from source and content digest.
// Identical content within one source collapses to a single id; the same
// content in two different sources gets distinct ids (no cross-document
// aliasing).
func NewID(source, digest string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(digest))
	return hex.EncodeToString(h.Sum(nil))
}
