// Package indexer turns chunks into a searchable vector index and keeps the
// handle that ingest and query share.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"documind/internal/domain"
	"documind/internal/logging"
	"documind/internal/vectorstore"
)

const DefaultBatchSize = 32

// Index is the shared handle over a built vector store. Replacing the index
// takes the write lock, so a search sees either the old or the new index.
type Index struct {
	mu    sync.RWMutex
	store vectorstore.Storage
	meta  vectorstore.Meta
}

// Search returns the topK chunks closest to vector. A vector that does not
// match the index dimension is rejected instead of being ranked.
func (i *Index) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.meta.Count > 0 && i.meta.Dimension > 0 && len(vector) != i.meta.Dimension {
		return nil, fmt.Errorf("query has %d dims, index has %d: %w",
			len(vector), i.meta.Dimension, vectorstore.ErrDimensionMismatch)
	}
	return i.store.Search(ctx, vector, topK)
}

// Count returns the number of indexed chunks.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.meta.Count
}

// Info returns the metadata of the index currently served.
func (i *Index) Info() vectorstore.Meta {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.meta
}

// Indexer embeds chunks and writes them to a store.
type Indexer struct {
	embedder  domain.Embedder
	store     vectorstore.Storage
	batchSize int
	timeout   time.Duration
	log       *zap.Logger

	mu  sync.Mutex
	idx *Index
}

type Option func(*Indexer)

// WithBatchSize sets how many chunk texts go into one embedding call.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithTimeout bounds every embedding call and the store replace.
func WithTimeout(d time.Duration) Option {
	return func(ix *Indexer) { ix.timeout = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(ix *Indexer) { ix.log = logging.OrNop(log) }
}

func New(embedder domain.Embedder, store vectorstore.Storage, opts ...Option) *Indexer {
	ix := &Indexer{
		embedder:  embedder,
		store:     store,
		batchSize: DefaultBatchSize,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Reindex replaces the whole index with chunks. Every vector is computed
// before the store is touched; any failure leaves the previous index intact.
func (ix *Indexer) Reindex(ctx context.Context, chunks []domain.Chunk) (*Index, error) {
	started := time.Now()
	vectors, err := ix.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	meta := vectorstore.Meta{
		Model:   ix.embedder.Name(),
		Count:   len(chunks),
		BuiltAt: time.Now().UTC(),
	}
	if len(vectors) > 0 {
		meta.Dimension = len(vectors[0])
	}

	idx := ix.handle()
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rctx, cancel := ix.withTimeout(ctx)
	defer cancel()
	if err := ix.store.Replace(rctx, chunks, vectors, meta); err != nil {
		return nil, fmt.Errorf("replace index: %w", err)
	}
	idx.meta = meta

	ix.log.Info("index rebuilt",
		zap.Int("chunks", meta.Count),
		zap.Int("dimension", meta.Dimension),
		zap.String("model", meta.Model),
		zap.Duration("took", time.Since(started)),
	)
	return idx, nil
}

// LoadExisting opens the index persisted by an earlier run. It returns
// domain.ErrIndexMissing when nothing has been built yet.
func (ix *Indexer) LoadExisting(ctx context.Context) (*Index, error) {
	meta, ok, err := ix.store.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("read index metadata: %w", err)
	}
	if !ok {
		return nil, domain.ErrIndexMissing
	}
	if meta.Model != "" && meta.Model != ix.embedder.Name() {
		ix.log.Warn("index was built with a different embedder; reindex recommended",
			zap.String("index_model", meta.Model),
			zap.String("embedder", ix.embedder.Name()),
		)
	}
	idx := ix.handle()
	idx.mu.Lock()
	idx.meta = meta
	idx.mu.Unlock()
	return idx, nil
}

func (ix *Indexer) handle() *Index {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.idx == nil {
		ix.idx = &Index{store: ix.store}
	}
	return ix.idx
}

func (ix *Indexer) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	dim := 0
	for start := 0; start < len(chunks); start += ix.batchSize {
		end := min(start+ix.batchSize, len(chunks))
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Text
		}

		bctx, cancel := ix.withTimeout(ctx)
		batch, err := ix.embedder.Embed(bctx, texts)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), len(texts))
		}
		for i, v := range batch {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) == 0 || len(v) != dim {
				return nil, fmt.Errorf("chunk %q: got %d dims, want %d: %w",
					chunks[start+i].ID, len(v), dim, vectorstore.ErrDimensionMismatch)
			}
		}
		vectors = append(vectors, batch...)
		ix.log.Debug("embedded batch", zap.Int("from", start), zap.Int("to", end))
	}
	return vectors, nil
}

func (ix *Indexer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ix.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ix.timeout)
}
