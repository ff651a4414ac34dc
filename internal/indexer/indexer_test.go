package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/domain"
	"documind/internal/embedding/hashing"
	"documind/internal/vectorstore"
	"documind/internal/vectorstore/memory"
	"documind/internal/vectorstore/sqlite"
)

type flakyEmbedder struct {
	inner   domain.Embedder
	failOn  int
	calls   int
	sizes   []int
	badDims bool
}

func (f *flakyEmbedder) Name() string { return f.inner.Name() }

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.sizes = append(f.sizes, len(texts))
	if f.calls == f.failOn {
		return nil, errors.New("model unavailable")
	}
	out, err := f.inner.Embed(ctx, texts)
	if err == nil && f.badDims && f.calls > 1 {
		out[0] = out[0][:3]
	}
	return out, err
}

func testChunks(texts ...string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{ID: fmt.Sprintf("c%d", i), Text: t, SourcePath: "data/notes.md", Index: i}
	}
	return chunks
}

func TestReindex_BuildsSearchableIndex(t *testing.T) {
	ctx := context.Background()
	emb := hashing.NewEmbedder(256)
	ix := New(emb, memory.NewStorage())

	idx, err := ix.Reindex(ctx, testChunks(
		"golang channels and goroutines",
		"baking sourdough bread at home",
		"kubernetes pods and deployments",
	))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Count())
	assert.Equal(t, "hashing-256", idx.Info().Model)
	assert.Equal(t, 256, idx.Info().Dimension)

	q, err := emb.Embed(ctx, []string{"baking sourdough bread at home"})
	require.NoError(t, err)
	res, err := idx.Search(ctx, q[0], 2)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "c1", res[0].Chunk.ID)
}

func TestReindex_BatchesEmbeddingCalls(t *testing.T) {
	emb := &flakyEmbedder{inner: hashing.NewEmbedder(64)}
	ix := New(emb, memory.NewStorage(), WithBatchSize(2))

	_, err := ix.Reindex(context.Background(), testChunks("a one", "b two", "c three", "d four", "e five"))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, emb.sizes)
}

func TestReindex_EmbeddingFailureKeepsPreviousIndex(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	emb := &flakyEmbedder{inner: hashing.NewEmbedder(64)}
	ix := New(emb, store, WithBatchSize(1))

	_, err := ix.Reindex(ctx, testChunks("first corpus"))
	require.NoError(t, err)

	emb.failOn = emb.calls + 2
	_, err = ix.Reindex(ctx, testChunks("second corpus", "more text", "even more"))
	assert.ErrorContains(t, err, "model unavailable")

	meta, ok, err := store.Meta(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, meta.Count)
}

func TestReindex_DimensionDriftAborts(t *testing.T) {
	emb := &flakyEmbedder{inner: hashing.NewEmbedder(64), badDims: true}
	ix := New(emb, memory.NewStorage(), WithBatchSize(1))

	_, err := ix.Reindex(context.Background(), testChunks("one", "two"))
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestReindex_TimeoutAppliesPerCall(t *testing.T) {
	slow := embedFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ix := New(slow, memory.NewStorage(), WithTimeout(10*time.Millisecond))

	_, err := ix.Reindex(context.Background(), testChunks("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReindex_IsDeterministic(t *testing.T) {
	ctx := context.Background()
	emb := hashing.NewEmbedder(128)
	ix := New(emb, memory.NewStorage())
	chunks := testChunks("alpha beta gamma", "delta epsilon", "gamma delta alpha")
	q, err := emb.Embed(ctx, []string{"gamma alpha"})
	require.NoError(t, err)

	idx, err := ix.Reindex(ctx, chunks)
	require.NoError(t, err)
	first, err := idx.Search(ctx, q[0], 2)
	require.NoError(t, err)

	idx, err = ix.Reindex(ctx, chunks)
	require.NoError(t, err)
	second, err := idx.Search(ctx, q[0], 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLoadExisting(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := hashing.NewEmbedder(64)

	store, err := sqlite.Open(dir)
	require.NoError(t, err)
	_, err = New(emb, store).LoadExisting(ctx)
	assert.ErrorIs(t, err, domain.ErrIndexMissing)

	_, err = New(emb, store).Reindex(ctx, testChunks("persisted text", "another chunk"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	idx, err := New(emb, reopened).LoadExisting(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Count())
	assert.Equal(t, "hashing-64", idx.Info().Model)
}

func TestIndexSearch_RejectsQueryOfOtherDimension(t *testing.T) {
	ctx := context.Background()
	idx, err := New(hashing.NewEmbedder(64), memory.NewStorage()).Reindex(ctx, testChunks("alpha", "beta"))
	require.NoError(t, err)

	q, err := hashing.NewEmbedder(16).Embed(ctx, []string{"alpha"})
	require.NoError(t, err)
	res, err := idx.Search(ctx, q[0], 2)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	assert.Nil(t, res)
}

type embedFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f embedFunc) Name() string { return "func" }

func (f embedFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}
