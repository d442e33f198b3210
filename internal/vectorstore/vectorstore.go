// Package vectorstore holds helpers shared by the domain.VectorStore implementations.
package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"docintel/internal/domain"
)

var (
	ErrInvalidDimension  = errors.New("invalid dimension")
	ErrLengthMismatch    = errors.New("chunks and vectors length mismatch")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// DefaultTopK is used when a SearchRequest leaves TopK unset.
const DefaultTopK = 5

// ChunkKey is the stable identity of a chunk across re-ingestion.
func ChunkKey(c domain.Chunk) string {
	return fmt.Sprintf("%s:%d", c.DocID, c.ChunkID)
}

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero vector.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CheckUpsert validates an Upsert call against the store dimension.
func CheckUpsert(dimension int, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return ErrLengthMismatch
	}
	for _, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dimension)
		}
	}
	return nil
}

// TopK sorts candidates by descending score and keeps the first k.
// Ties keep insertion order so results are deterministic.
func TopK(candidates []domain.Match, k int) []domain.Match {
	if k <= 0 {
		k = DefaultTopK
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates
}
