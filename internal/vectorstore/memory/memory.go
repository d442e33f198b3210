package memory

import (
	"context"
	"sync"

	"docintel/internal/domain"
	"docintel/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	index     map[string]int
	vectors   [][]float64
	chunks    []domain.Chunk
}

func NewStorage() *Storage { return &Storage{index: make(map[string]int)} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return vectorstore.ErrInvalidDimension
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.index = make(map[string]int)
	s.vectors = nil
	s.chunks = nil
	return nil
}

// Upsert replaces chunks whose doc_id:chunk_id is already stored and appends the rest.
func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := vectorstore.CheckUpsert(s.dimension, chunks, vectors); err != nil {
		return err
	}
	for i, c := range chunks {
		key := vectorstore.ChunkKey(c)
		if j, ok := s.index[key]; ok {
			s.chunks[j] = c
			s.vectors[j] = vectors[i]
			continue
		}
		s.index[key] = len(s.chunks)
		s.chunks = append(s.chunks, c)
		s.vectors = append(s.vectors, vectors[i])
	}
	return nil
}

func (s *Storage) Search(_ context.Context, req domain.SearchRequest) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := make([]domain.Match, 0, len(s.vectors))
	for i := range s.vectors {
		m := domain.Match{
			ID:    vectorstore.ChunkKey(s.chunks[i]),
			Score: vectorstore.Cosine(s.vectors[i], req.Vector),
		}
		if req.IncludeMetadata {
			m.Metadata = s.chunks[i].Metadata()
		}
		matches = append(matches, m)
	}
	return vectorstore.TopK(matches, req.TopK), nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Storage) DeleteDoc(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := 0
	for i, c := range s.chunks {
		if c.DocID == docID {
			continue
		}
		s.chunks[kept] = c
		s.vectors[kept] = s.vectors[i]
		kept++
	}
	clear(s.chunks[kept:])
	clear(s.vectors[kept:])
	s.chunks = s.chunks[:kept]
	s.vectors = s.vectors[:kept]
	s.index = make(map[string]int, kept)
	for i, c := range s.chunks {
		s.index[vectorstore.ChunkKey(c)] = i
	}
	return nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[string]int)
	s.vectors = nil
	s.chunks = nil
	return nil
}
