package document

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ErrInvalidEncoding is returned for files that are not valid UTF-8.
var ErrInvalidEncoding = errors.New("document is not valid UTF-8")

// Document is a text file held fully in memory for the duration of a run.
type Document struct {
	Path string
	Text string
	Mode fs.FileMode
}

// Load reads the whole file at path. The handle is released on every path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer closeWithLog(path, f)

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEncoding, path)
	}

	return &Document{
		Path: path,
		Text: string(data),
		Mode: info.Mode().Perm(),
	}, nil
}

// Save overwrites the document's file with text, keeping its permissions,
// and updates the in-memory copy on success.
func (d *Document) Save(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: refusing to write %s", ErrInvalidEncoding, d.Path)
	}

	mode := d.Mode
	if mode == 0 {
		mode = 0644
	}

	f, err := os.OpenFile(d.Path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, mode)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", d.Path, err)
	}

	if _, err := io.WriteString(f, text); err != nil {
		closeWithLog(d.Path, f)
		return fmt.Errorf("failed to write %s: %w", d.Path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", d.Path, err)
	}

	d.Text = text
	return nil
}

func closeWithLog(name string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		zap.L().Warn("failed to close file", zap.String("path", name), zap.Error(err))
	}
}
