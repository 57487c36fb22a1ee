package chunk

import (
	"fmt"
	"strconv"
)

// WindowChunker emits overlapping fixed-size character windows.
// The final window may be shorter than the configured size.
type WindowChunker struct {
	windowSize int
	overlap    int
}

// NewWindowChunker creates a window chunker.
// windowSize must be positive and overlap must be in [0, windowSize).
func NewWindowChunker(windowSize, overlap int) (*WindowChunker, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	if overlap < 0 || overlap >= windowSize {
		return nil, fmt.Errorf("overlap must be in [0, window size), got %d", overlap)
	}
	return &WindowChunker{windowSize: windowSize, overlap: overlap}, nil
}

// Split produces the ordered chunk sequence for one document.
// Empty text yields an empty sequence, not an error. Offsets are in runes
// so multi-byte text never splits inside a character.
func (c *WindowChunker) Split(source, text string, meta map[string]string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.windowSize - c.overlap
	var chunks []Chunk

	for start, pos := 0, 0; ; start, pos = start+step, pos+1 {
		end := start + c.windowSize
		if end > len(runes) {
			end = len(runes)
		}

		window := string(runes[start:end])
		digest := Fingerprint(window)

		md := make(map[string]string, len(meta)+2)
		for k, v := range meta {
			md[k] = v
		}
		md[MetaSource] = source
		md[MetaPosition] = strconv.Itoa(pos)

		chunks = append(chunks, Chunk{
			ID:       NewID(source, digest),
			Source:   source,
			Position: pos,
			Start:    start,
			End:      end,
			Text:     window,
			Digest:   digest,
			Metadata: md,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks
}

// WindowSize returns the configured window size in characters.
func (c *WindowChunker) WindowSize() int { return c.windowSize }

// Overlap returns the configured overlap in characters.
func (c *WindowChunker) Overlap() int { return c.overlap }
