package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCorpus means no supported document could be loaded.
	ErrEmptyCorpus = errors.New("no markdown or pdf documents to index")
	// ErrIndexMissing means no vector index has been built or persisted yet.
	ErrIndexMissing = errors.New("vector index not built yet")
	// ErrNoRelevantChunks means retrieval returned nothing for a question.
	ErrNoRelevantChunks = errors.New("no relevant chunks retrieved")
)

// LoadError reports a single file that could not be extracted.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// GenerationError wraps a failed language model call.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation with %s failed: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
