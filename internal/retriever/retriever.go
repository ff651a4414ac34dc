// Package retriever finds the chunks most similar to a question.
package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"documind/internal/domain"
	"documind/internal/indexer"
)

const DefaultTopK = 2

type Retriever struct {
	embedder domain.Embedder
	topK     int
	timeout  time.Duration
}

// New returns a retriever. topK <= 0 falls back to DefaultTopK.
func New(embedder domain.Embedder, topK int, timeout time.Duration) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, topK: topK, timeout: timeout}
}

// Query embeds question and returns up to k chunks from idx, best first.
// k <= 0 uses the configured default. An empty index or a blank question
// yields an empty result, not an error.
func (r *Retriever) Query(ctx context.Context, idx *indexer.Index, question string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = r.topK
	}
	if idx == nil || idx.Count() == 0 || strings.TrimSpace(question) == "" {
		return nil, nil
	}

	ectx, cancel := ctx, context.CancelFunc(func() {})
	if r.timeout > 0 {
		ectx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	vecs, err := r.embedder.Embed(ectx, []string{question})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one question", len(vecs))
	}
	return idx.Search(ctx, vecs[0], k)
}
