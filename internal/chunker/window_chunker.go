package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"documind/internal/domain"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// WindowChunker splits text into fixed-size character windows with overlap.
// Sizes are counted in runes.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates the window parameters. Overlap must be strictly
// smaller than size so the window always advances.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Size returns the window length.
func (c *WindowChunker) Size() int { return c.size }

// Overlap returns the number of runes shared by consecutive chunks.
func (c *WindowChunker) Overlap() int { return c.overlap }

// Chunk slices one document left to right.
func (c *WindowChunker) Chunk(document domain.Document) []domain.Chunk {
	if strings.TrimSpace(document.Text) == "" {
		return nil
	}
	runes := []rune(document.Text)
	step := c.size - c.overlap
	n := len(runes)

	chunks := make([]domain.Chunk, 0, n/step+1)
	for start, idx := 0, 0; ; start, idx = start+step, idx+1 {
		end := start + c.size
		if end > n {
			end = n
		}
		chunks = append(chunks, domain.Chunk{
			ID:          chunkID(document, idx),
			Text:        string(runes[start:end]),
			SourcePath:  document.SourcePath,
			StartOffset: start,
			HasOffset:   true,
			Index:       idx,
			Metadata:    copyMetadata(document.Metadata),
		})
		if end == n {
			break
		}
	}
	return chunks
}

// Split chunks every document, preserving document order.
func (c *WindowChunker) Split(documents []domain.Document) []domain.Chunk {
	var out []domain.Chunk
	for _, d := range documents {
		out = append(out, c.Chunk(d)...)
	}
	return out
}

func chunkID(document domain.Document, idx int) string {
	key := document.SourcePath
	if page, ok := document.Metadata["page"]; ok {
		key += "#" + fmt.Sprint(page)
	}
	h := sha1.Sum([]byte(key))
	return hex.EncodeToString(h[:8]) + ":" + strconv.Itoa(idx)
}

func copyMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
