package loader

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"documind/internal/domain"
)

// MarkdownExtractor reads a Markdown file as one plain-text document.
type MarkdownExtractor struct{}

var (
	codeFenceRe   = regexp.MustCompile("(?m)^```.*$")
	inlineCodeRe  = regexp.MustCompile("`([^`]+)`")
	imageRe       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	linkRe        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headingRe     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	blockquoteRe  = regexp.MustCompile(`(?m)^>\s?`)
	hrRe          = regexp.MustCompile(`(?m)^\s*([-*_])(\s*[-*_]){2,}\s*$`)
	listMarkerRe  = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	htmlTagRe     = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)

	// Strong before single markers. A marker only opens or closes at a word
	// boundary and never next to whitespace on the inside, so snake_case
	// names and "2 * 3" are left alone.
	emphasisRes = []*regexp.Regexp{
		emphasisRe("**"),
		emphasisRe("__"),
		emphasisRe("*"),
		emphasisRe("_"),
	}
)

func emphasisRe(marker string) *regexp.Regexp {
	m := regexp.QuoteMeta(marker)
	return regexp.MustCompile(`(?m)(^|[^\w*])` + m + `([^\s*_](?:[^\n]*?[^\s*_])?)` + m + `($|[^\w*])`)
}

// stripEmphasis repeats until nothing changes: adjacent spans share the
// boundary character, so one pass can leave the second span behind.
func stripEmphasis(content string) string {
	for {
		prev := content
		for _, re := range emphasisRes {
			content = re.ReplaceAllString(content, "$1$2$3")
		}
		if content == prev {
			return content
		}
	}
}

func (MarkdownExtractor) Extract(_ context.Context, path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := StripMarkdown(string(data))
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []domain.Document{{
		Text:       text,
		SourcePath: path,
		Metadata: map[string]any{
			"format": "markdown",
			"title":  markdownTitle(string(data), path),
		},
	}}, nil
}

// StripMarkdown removes common formatting, keeping the readable text.
func StripMarkdown(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = codeFenceRe.ReplaceAllString(content, "")
	content = inlineCodeRe.ReplaceAllString(content, "$1")
	content = imageRe.ReplaceAllString(content, "$1")
	content = linkRe.ReplaceAllString(content, "$1")
	content = headingRe.ReplaceAllString(content, "")
	content = blockquoteRe.ReplaceAllString(content, "")
	content = hrRe.ReplaceAllString(content, "")
	content = listMarkerRe.ReplaceAllString(content, "$1")
	content = stripEmphasis(content)
	content = htmlTagRe.ReplaceAllString(content, "")
	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

func markdownTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
