// Package storetest holds behaviour checks shared by every Storage backend.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/domain"
	"documind/internal/vectorstore"
)

// Chunks returns n chunks from one source with unit basis vectors.
func Chunks(n int) ([]domain.Chunk, [][]float32) {
	chunks := make([]domain.Chunk, n)
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		chunks[i] = domain.Chunk{
			ID:          string(rune('A' + i)),
			Text:        "chunk " + string(rune('A'+i)),
			SourcePath:  "data/doc.md",
			StartOffset: i * 800,
			HasOffset:   true,
			Index:       i,
		}
		v := make([]float32, n)
		v[i] = 1
		vectors[i] = v
	}
	return chunks, vectors
}

// Run exercises the Storage contract against stores made by newStore.
func Run(t *testing.T, newStore func(t *testing.T) vectorstore.Storage) {
	ctx := context.Background()

	t.Run("unbuilt store reports no meta", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Meta(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty index searches to nothing", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, nil, nil, vectorstore.Meta{Model: "m"}))
		res, err := s.Search(ctx, []float32{1, 0}, 2)
		require.NoError(t, err)
		assert.Empty(t, res)

		meta, ok, err := s.Meta(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0, meta.Count)
	})

	t.Run("identical vector ranks first", func(t *testing.T) {
		s := newStore(t)
		chunks, vectors := Chunks(3)
		require.NoError(t, s.Replace(ctx, chunks, vectors, vectorstore.Meta{Model: "m"}))

		res, err := s.Search(ctx, vectors[1], 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "B", res[0].Chunk.ID)
		assert.Equal(t, "data/doc.md", res[0].Chunk.SourcePath)
		assert.Equal(t, 800, res[0].Chunk.StartOffset)
		assert.InDelta(t, 1.0, res[0].Score, 1e-6)
		assert.GreaterOrEqual(t, res[0].Score, res[1].Score)

		meta, ok, err := s.Meta(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 3, meta.Count)
		assert.Equal(t, 3, meta.Dimension)
		assert.Equal(t, "m", meta.Model)
	})

	t.Run("topK larger than index", func(t *testing.T) {
		s := newStore(t)
		chunks, vectors := Chunks(2)
		require.NoError(t, s.Replace(ctx, chunks, vectors, vectorstore.Meta{}))
		res, err := s.Search(ctx, vectors[0], 10)
		require.NoError(t, err)
		assert.Len(t, res, 2)
	})

	t.Run("replace is total", func(t *testing.T) {
		s := newStore(t)
		chunks, vectors := Chunks(3)
		require.NoError(t, s.Replace(ctx, chunks, vectors, vectorstore.Meta{}))
		require.NoError(t, s.Replace(ctx, chunks[:1], [][]float32{{1, 0, 0}}, vectorstore.Meta{}))

		res, err := s.Search(ctx, []float32{0, 1, 0}, 5)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "A", res[0].Chunk.ID)
	})

	t.Run("invalid batch keeps previous index", func(t *testing.T) {
		s := newStore(t)
		chunks, vectors := Chunks(2)
		require.NoError(t, s.Replace(ctx, chunks, vectors, vectorstore.Meta{}))

		bad := append([]domain.Chunk(nil), chunks...)
		bad[1].SourcePath = ""
		err := s.Replace(ctx, bad, vectors, vectorstore.Meta{})
		assert.ErrorIs(t, err, vectorstore.ErrMissingSource)

		err = s.Replace(ctx, chunks, [][]float32{{1, 0}, {1}}, vectorstore.Meta{})
		assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

		err = s.Replace(ctx, chunks, vectors[:1], vectorstore.Meta{})
		assert.ErrorIs(t, err, vectorstore.ErrLengthMismatch)

		res, err := s.Search(ctx, vectors[1], 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "B", res[0].Chunk.ID)
	})
}
