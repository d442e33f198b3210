// Package chunker splits extracted document text into retrieval chunks.
package chunker

import (
	"strings"

	"docintel/internal/domain"
)

// WindowChunker cuts text into fixed-size rune windows that overlap by a
// fixed number of runes. CharStart and CharEnd are rune offsets.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker returns a chunker with the given window and overlap.
// Invalid values fall back to 1000 and 200.
func NewWindowChunker(size, overlap int) *WindowChunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = min(200, size/5)
	}
	return &WindowChunker{size: size, overlap: overlap}
}

// Chunk splits the document. Whitespace-only content yields no chunks.
func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(document.Content) == "" {
		return nil, nil
	}
	runes := []rune(document.Content)
	step := c.size - c.overlap
	var chunks []domain.Chunk
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		chunks = append(chunks, domain.Chunk{
			DocID:     document.ID,
			ChunkID:   len(chunks),
			Text:      string(runes[start:end]),
			CharStart: start,
			CharEnd:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
