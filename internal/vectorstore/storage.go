package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"documind/internal/domain"
	"documind/internal/embedding"
)

// Meta describes the index currently held by a store.
type Meta struct {
	Model     string
	Dimension int
	Count     int
	BuiltAt   time.Time
}

// Storage persists vectors and supports similarity search.
//
// Replace swaps the whole index in one step: readers see either the previous
// index or the new one, never a mix. Meta reports false until the first
// successful Replace.
type Storage interface {
	Replace(ctx context.Context, chunks []domain.Chunk, vectors [][]float32, meta Meta) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Meta(ctx context.Context) (Meta, bool, error)
	Close() error
}

var (
	ErrLengthMismatch    = errors.New("chunks and vectors length mismatch")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrMissingSource     = errors.New("chunk has no source path")
)

// Validate checks a replacement batch and returns its vector dimension.
func Validate(chunks []domain.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, ErrLengthMismatch
	}
	dim := 0
	for i, v := range vectors {
		if chunks[i].SourcePath == "" {
			return 0, fmt.Errorf("chunk %q: %w", chunks[i].ID, ErrMissingSource)
		}
		if len(v) == 0 {
			return 0, fmt.Errorf("chunk %q: empty vector: %w", chunks[i].ID, ErrDimensionMismatch)
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return 0, fmt.Errorf("chunk %q has %d dims, want %d: %w", chunks[i].ID, len(v), dim, ErrDimensionMismatch)
		}
	}
	return dim, nil
}

// Rank scores every vector against query and returns the best topK,
// highest first. Ties keep insertion order. A query whose length differs
// from the stored vectors fails with ErrDimensionMismatch.
func Rank(chunks []domain.Chunk, vectors [][]float32, query []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 || len(vectors) == 0 {
		return nil, nil
	}
	results := make([]domain.SearchResult, len(vectors))
	for i := range vectors {
		if len(vectors[i]) != len(query) {
			return nil, fmt.Errorf("query has %d dims, index has %d: %w", len(query), len(vectors[i]), ErrDimensionMismatch)
		}
		results[i] = domain.SearchResult{Chunk: chunks[i], Score: embedding.Cosine(vectors[i], query)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}
