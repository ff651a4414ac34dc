package domain

import "context"

// Document is the extracted text of one input file (or one PDF page).
type Document struct {
	Text       string
	SourcePath string
	Metadata   map[string]any
}

// Chunk is a bounded slice of a document used as the unit of retrieval.
type Chunk struct {
	ID          string
	Text        string
	SourcePath  string
	StartOffset int
	HasOffset   bool
	Index       int
	Metadata    map[string]any
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message of the chat transcript.
type ConversationTurn struct {
	Role    Role
	Content string
}

// Embedder converts free text into fixed-length vectors.
// Identical input must produce identical output.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator runs a text-to-text language model.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) []Chunk
}

// Extractor turns one file into zero or more documents.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Document, error)
}
