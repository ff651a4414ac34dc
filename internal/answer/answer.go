// Package answer builds the grounded prompt and asks the language model.
package answer

import (
	"context"
	"strings"
	"time"

	"documind/internal/domain"
)

const (
	DefaultMaxNewTokens = 200
	PreviewLength       = 300
)

const promptTemplate = `Use the following pieces of context to answer the question at the end.
If the answer is not in the context, just say that you don't know, don't try to make up an answer.
If the question is a greeting (like hello, hi), simply greet the user back.

Context:
{context}

Question: {question}

Helpful Answer:`

// Answer is the raw model output plus the chunks it was conditioned on.
type Answer struct {
	Text     string
	Evidence []domain.Chunk
	Prompt   string
}

type Composer struct {
	generator    domain.Generator
	maxNewTokens int
	timeout      time.Duration
}

func New(generator domain.Generator, maxNewTokens int, timeout time.Duration) *Composer {
	if maxNewTokens <= 0 {
		maxNewTokens = DefaultMaxNewTokens
	}
	return &Composer{generator: generator, maxNewTokens: maxNewTokens, timeout: timeout}
}

// BuildContext joins chunk texts in rank order, separated by blank lines.
func BuildContext(results []domain.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Text
	}
	return strings.Join(parts, "\n\n")
}

func BuildPrompt(context, question string) string {
	return strings.NewReplacer("{context}", context, "{question}", question).Replace(promptTemplate)
}

// Answer asks the generator about question using results as context.
// With no results it returns domain.ErrNoRelevantChunks and never calls
// the model.
func (c *Composer) Answer(ctx context.Context, question string, results []domain.SearchResult) (Answer, error) {
	if len(results) == 0 {
		return Answer{}, domain.ErrNoRelevantChunks
	}
	evidence := make([]domain.Chunk, len(results))
	for i, r := range results {
		evidence[i] = r.Chunk
	}
	prompt := BuildPrompt(BuildContext(results), question)

	gctx, cancel := ctx, context.CancelFunc(func() {})
	if c.timeout > 0 {
		gctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	defer cancel()
	text, err := c.generator.Generate(gctx, prompt, c.maxNewTokens)
	if err != nil {
		return Answer{Evidence: evidence, Prompt: prompt}, &domain.GenerationError{Model: c.generator.Name(), Err: err}
	}
	return Answer{Text: text, Evidence: evidence, Prompt: prompt}, nil
}

// Preview returns the first n runes of text, marking the cut with "...".
func Preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
