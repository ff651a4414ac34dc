package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"documind/internal/domain"
	"documind/internal/logging"
)

// Result is the outcome of scanning one directory.
type Result struct {
	Files     []string
	Documents []domain.Document
	Failures  []*domain.LoadError
}

// Loader reads supported files from a flat directory.
type Loader struct {
	extractors map[string]domain.Extractor
	log        *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithExtractor registers an extractor for a file extension such as ".md".
func WithExtractor(ext string, e domain.Extractor) Option {
	return func(l *Loader) {
		l.extractors[strings.ToLower(ext)] = e
	}
}

// WithLogger sets the logger used to report skipped files.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) { l.log = logging.OrNop(log) }
}

// New returns a loader handling Markdown and PDF files.
func New(opts ...Option) *Loader {
	l := &Loader{
		extractors: map[string]domain.Extractor{
			".md":  MarkdownExtractor{},
			".pdf": PDFExtractor{},
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supported reports whether a file name has an extension the loader reads.
func (l *Loader) Supported(name string) bool {
	_, ok := l.extractors[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Scan lists supported files directly inside dir, creating dir if needed.
func (l *Loader) Scan(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !l.Supported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Load extracts every supported file in dir. A file that fails to extract is
// logged and recorded in Result.Failures; the remaining files still load.
func (l *Loader) Load(ctx context.Context, dir string) (Result, error) {
	files, err := l.Scan(dir)
	if err != nil {
		return Result{}, err
	}
	res := Result{Files: files}
	l.log.Info("scanned data directory", zap.String("dir", dir), zap.Int("files", len(files)))

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ext := l.extractors[strings.ToLower(filepath.Ext(path))]
		docs, err := ext.Extract(ctx, path)
		if err != nil {
			lerr := &domain.LoadError{Path: path, Err: err}
			res.Failures = append(res.Failures, lerr)
			l.log.Warn("skipping file", zap.String("path", path), zap.Error(err))
			continue
		}
		res.Documents = append(res.Documents, docs...)
		l.log.Debug("loaded file", zap.String("path", path), zap.Int("documents", len(docs)))
	}
	return res, nil
}
