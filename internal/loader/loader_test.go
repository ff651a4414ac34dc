package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string) ([]domain.Document, error) {
	return nil, errors.New("boom")
}

func TestLoad_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	res, err := New().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	assert.Empty(t, res.Documents)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoad_UnsupportedExtensionsYieldNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "plain text")
	writeFile(t, dir, "table.csv", "a,b")
	writeFile(t, dir, "README", "no extension")

	res, err := New().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	assert.Empty(t, res.Documents)
	assert.Empty(t, res.Failures)
}

func TestLoad_IsFlatAndOrdered(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.md", "# Beta\n\nSecond file.")
	writeFile(t, dir, "A.MD", "First file.")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	writeFile(t, filepath.Join(dir, "nested"), "c.md", "ignored")

	res, err := New().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, filepath.Join(dir, "A.MD"), res.Documents[0].SourcePath)
	assert.Equal(t, "First file.", res.Documents[0].Text)
	assert.Equal(t, "Beta\n\nSecond file.", res.Documents[1].Text)
	assert.Equal(t, "Beta", res.Documents[1].Metadata["title"])
}

func TestLoad_PerFileFailureIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.md", "RAG stands for Retrieval Augmented Generation.")
	bad := writeFile(t, dir, "broken.pdf", "%PDF-1.4 this is not really a pdf")

	res, err := New().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, res.Files, 2)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "RAG stands for Retrieval Augmented Generation.", res.Documents[0].Text)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, bad, res.Failures[0].Path)
	var lerr *domain.LoadError
	assert.True(t, errors.As(res.Failures[0], &lerr))
}

func TestLoad_AllFailuresGiveEmptyResultNotError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.md", "x")
	writeFile(t, dir, "two.md", "y")

	l := New(WithExtractor(".md", failingExtractor{}))
	res, err := l.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
	assert.Len(t, res.Failures, 2)
}

func TestLoad_EmptyPDFIsAFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.pdf", "")

	res, err := New().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
	require.Len(t, res.Failures, 1)
	assert.ErrorContains(t, res.Failures[0], "empty pdf")
}

// buildPDF assembles a minimal PDF with one Helvetica page per entry of
// pages. An empty entry yields a page without text.
func buildPDF(pages ...string) []byte {
	n := len(pages)
	fontID := 3 + 2*n
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i, text := range pages {
		content := "q Q"
		if text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontID, 4+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestLoad_PDFPagesBecomeDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.pdf")
	data := buildPDF("Goroutines are cheap.", "", "Channels connect goroutines.")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	res, err := New().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	require.Len(t, res.Documents, 2)

	first, second := res.Documents[0], res.Documents[1]
	assert.Equal(t, "Goroutines are cheap.", strings.TrimSpace(first.Text))
	assert.Equal(t, "Channels connect goroutines.", strings.TrimSpace(second.Text))
	assert.Equal(t, path, first.SourcePath)
	assert.Equal(t, map[string]any{"format": "pdf", "page": 1, "total_pages": 3}, first.Metadata)
	assert.Equal(t, map[string]any{"format": "pdf", "page": 3, "total_pages": 3}, second.Metadata)
}

func TestLoad_HonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "text")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Load(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"heading", "## Setup", "Setup"},
		{"link", "See [the docs](https://example.com).", "See the docs."},
		{"image", "![diagram](img.png)", "diagram"},
		{"emphasis", "This is **very** _important_.", "This is very important."},
		{"adjacent emphasis", "*one* *two* and __three__", "one two and three"},
		{"snake case kept", "Set max_new_tokens to 200 tokens.", "Set max_new_tokens to 200 tokens."},
		{"identifier kept", "Call load_existing_index() first", "Call load_existing_index() first"},
		{"arithmetic kept", "Compute 2 * 3 * 4", "Compute 2 * 3 * 4"},
		{"emphasis next to identifier", "Use *only* my_var here", "Use only my_var here"},
		{"inline code", "Run `make test` now", "Run make test now"},
		{"list", "- one\n- two", "one\ntwo"},
		{"blockquote", "> quoted", "quoted"},
		{"fence kept body", "```go\nfmt.Println()\n```", "fmt.Println()"},
		{"rule", "above\n\n---\n\nbelow", "above\n\nbelow"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripMarkdown(tc.in))
		})
	}
}
