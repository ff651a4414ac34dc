// Package extractive is an offline Generator. It reads the context and
// question sections of a prompt and answers with the context sentence that
// best overlaps the question, so the app works without a model server.
package extractive

import (
	"context"
	"regexp"
	"strings"
)

const (
	contextMarker  = "Context:\n"
	questionMarker = "\nQuestion:"
	answerMarker   = "\nHelpful Answer:"

	greetingReply = "Hello! Ask me anything about your documents."
	unknownReply  = "I don't know."
)

var (
	wordRe     = regexp.MustCompile(`[\p{L}\p{N}]+`)
	sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
	greetings  = map[string]struct{}{
		"hello": {}, "hi": {}, "hey": {}, "hiya": {}, "howdy": {}, "greetings": {},
		"good": {}, "morning": {}, "afternoon": {}, "evening": {}, "there": {},
	}
	stopwords = map[string]struct{}{
		"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "what": {}, "who": {},
		"how": {}, "why": {}, "when": {}, "where": {}, "which": {}, "of": {}, "to": {}, "in": {},
		"for": {}, "on": {}, "and": {}, "or": {}, "do": {}, "does": {}, "it": {}, "this": {},
		"that": {}, "be": {}, "can": {}, "i": {}, "you": {}, "me": {}, "about": {}, "tell": {},
	}
)

// Generator answers from the prompt's own context.
type Generator struct{}

// New returns an extractive generator.
func New() *Generator { return &Generator{} }

// Name returns the generator identifier.
func (*Generator) Name() string { return "extractive" }

// Generate returns a greeting, the best matching context sentence, or
// "I don't know." when nothing in the context overlaps the question.
func (*Generator) Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	contextText, question := sections(prompt)
	if isGreeting(question) {
		return greetingReply, nil
	}

	qTerms := terms(question)
	if len(qTerms) == 0 {
		return unknownReply, nil
	}
	best, bestScore := "", 0
	for _, s := range sentenceRe.FindAllString(contextText, -1) {
		s = strings.TrimSpace(s)
		score := 0
		for t := range terms(s) {
			if _, ok := qTerms[t]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = s, score
		}
	}
	if bestScore == 0 {
		return unknownReply, nil
	}
	return truncateWords(best, maxNewTokens), nil
}

func sections(prompt string) (contextText, question string) {
	if i := strings.Index(prompt, contextMarker); i >= 0 {
		rest := prompt[i+len(contextMarker):]
		if j := strings.Index(rest, questionMarker); j >= 0 {
			contextText = rest[:j]
			rest = rest[j+len(questionMarker):]
			if k := strings.Index(rest, answerMarker); k >= 0 {
				rest = rest[:k]
			}
			question = rest
		}
		return strings.TrimSpace(contextText), strings.TrimSpace(question)
	}
	return "", strings.TrimSpace(prompt)
}

func isGreeting(question string) bool {
	words := wordRe.FindAllString(strings.ToLower(question), -1)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		if _, ok := greetings[w]; !ok {
			return false
		}
	}
	return true
}

func terms(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func truncateWords(s string, maxWords int) string {
	if maxWords <= 0 {
		return s
	}
	fields := strings.Fields(s)
	if len(fields) <= maxWords {
		return s
	}
	return strings.Join(fields[:maxWords], " ")
}
