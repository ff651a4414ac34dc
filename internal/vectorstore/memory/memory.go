package memory

import (
	"context"
	"sync"

	"documind/internal/domain"
	"documind/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu      sync.RWMutex
	built   bool
	meta    vectorstore.Meta
	vectors [][]float32
	chunks  []domain.Chunk
}

func NewStorage() *Storage { return &Storage{} }

// Replace validates the batch and swaps it in under the write lock.
func (s *Storage) Replace(_ context.Context, chunks []domain.Chunk, vectors [][]float32, meta vectorstore.Meta) error {
	dim, err := vectorstore.Validate(chunks, vectors)
	if err != nil {
		return err
	}
	cs := append([]domain.Chunk(nil), chunks...)
	vs := make([][]float32, len(vectors))
	for i, v := range vectors {
		vs[i] = append([]float32(nil), v...)
	}
	meta.Dimension = dim
	meta.Count = len(cs)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks, s.vectors, s.meta, s.built = cs, vs, meta, true
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vectorstore.Rank(s.chunks, s.vectors, vector, topK)
}

func (s *Storage) Meta(context.Context) (vectorstore.Meta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta, s.built, nil
}

func (s *Storage) Close() error { return nil }
