package service

import (
	"fmt"
	"sync"

	"documind/internal/domain"
	"documind/internal/vectorstore"
)

// Resources holds the expensive collaborators. Each one is built on first
// use and then reused for the rest of the process; a failed build is retried
// on the next call.
type Resources struct {
	embedder  lazy[domain.Embedder]
	generator lazy[domain.Generator]
	store     lazy[vectorstore.Storage]
}

// NewResources wires the constructors. Nothing is built yet.
func NewResources(
	newEmbedder func() (domain.Embedder, error),
	newGenerator func() (domain.Generator, error),
	newStore func() (vectorstore.Storage, error),
) *Resources {
	return &Resources{
		embedder:  lazy[domain.Embedder]{name: "embedder", build: newEmbedder},
		generator: lazy[domain.Generator]{name: "generator", build: newGenerator},
		store:     lazy[vectorstore.Storage]{name: "vector store", build: newStore},
	}
}

// Static wraps already built collaborators.
func Static(e domain.Embedder, g domain.Generator, s vectorstore.Storage) *Resources {
	return NewResources(
		func() (domain.Embedder, error) { return e, nil },
		func() (domain.Generator, error) { return g, nil },
		func() (vectorstore.Storage, error) { return s, nil },
	)
}

func (r *Resources) Embedder() (domain.Embedder, error)   { return r.embedder.get() }
func (r *Resources) Generator() (domain.Generator, error) { return r.generator.get() }
func (r *Resources) Store() (vectorstore.Storage, error)  { return r.store.get() }

// Close releases the store if it was ever opened.
func (r *Resources) Close() error {
	if s, ok := r.store.peek(); ok {
		return s.Close()
	}
	return nil
}

type lazy[T any] struct {
	mu    sync.Mutex
	name  string
	build func() (T, error)
	val   T
	done  bool
}

func (l *lazy[T]) get() (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return l.val, nil
	}
	var zero T
	if l.build == nil {
		return zero, fmt.Errorf("no %s configured", l.name)
	}
	v, err := l.build()
	if err != nil {
		return zero, fmt.Errorf("init %s: %w", l.name, err)
	}
	l.val, l.done = v, true
	return v, nil
}

func (l *lazy[T]) peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.done
}
