package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedUpload is returned for files that are not .md or .pdf.
var ErrUnsupportedUpload = errors.New("only .md and .pdf uploads are accepted")

// Upload is one file handed over by the interactive surface.
type Upload struct {
	Name string
	Data []byte
	// Open is used instead of Data when set.
	Open func() (io.ReadCloser, error)
}

// FileUpload wraps a local file path as an Upload.
func FileUpload(path string) Upload {
	return Upload{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// SaveUploads writes uploads verbatim into dir under their base names.
// An existing file with the same name is overwritten.
func SaveUploads(dir string, uploads []Upload) ([]string, error) {
	for _, u := range uploads {
		if !uploadAllowed(u.Name) {
			return nil, fmt.Errorf("%s: %w", u.Name, ErrUnsupportedUpload)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	saved := make([]string, 0, len(uploads))
	for _, u := range uploads {
		dst := filepath.Join(dir, filepath.Base(u.Name))
		if err := writeUpload(dst, u); err != nil {
			return saved, fmt.Errorf("save %s: %w", u.Name, err)
		}
		saved = append(saved, dst)
	}
	return saved, nil
}

func uploadAllowed(name string) bool {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".md", ".pdf":
		return true
	}
	return false
}

func writeUpload(dst string, u Upload) error {
	if u.Open == nil {
		return os.WriteFile(dst, u.Data, 0o644)
	}
	src, err := u.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
