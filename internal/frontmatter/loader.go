// internal/frontmatter/loader.go
package frontmatter

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/solatis/mdcollate/internal/types"
)

// DefaultExtensions are the file suffixes LoadDir picks up.
var DefaultExtensions = []string{".md", ".markdown"}

// Loader reads documents from disk.
type Loader struct {
	logger     *slog.Logger
	extensions []string
}

// NewLoader creates a Loader. nil logger discards; empty exts uses DefaultExtensions.
func NewLoader(logger *slog.Logger, exts ...string) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	return &Loader{logger: logger, extensions: exts}
}

// LoadFile reads and parses one document.
func (l *Loader) LoadFile(path string) (types.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return types.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	data, body, err := ParseDocument(content)
	if err != nil {
		return types.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return types.Document{Path: path, Data: data, Body: string(body)}, nil
}

// LoadDocuments loads paths in order. Documents without usable frontmatter are
// skipped and reported as warnings; read failures abort.
func (l *Loader) LoadDocuments(paths []string) ([]types.Document, []string, error) {
	docs := make([]types.Document, 0, len(paths))
	var warnings []string

	for _, p := range paths {
		doc, err := l.LoadFile(p)
		switch {
		case err == nil:
			docs = append(docs, doc)
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
			return nil, warnings, err
		default:
			l.logger.Warn("skipping document", "path", p, "error", err)
			warnings = append(warnings, err.Error())
		}
	}

	l.logger.Debug("loaded documents", "count", len(docs), "skipped", len(warnings))
	return docs, warnings, nil
}

// LoadDir loads every matching file under root in lexical order.
func (l *Loader) LoadDir(root string) ([]types.Document, []string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if l.matches(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return l.LoadDocuments(paths)
}

// Load accepts a mix of files and directories.
func (l *Loader) Load(inputs []string) ([]types.Document, []string, error) {
	var docs []types.Document
	var warnings []string

	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, warnings, err
		}

		var d []types.Document
		var w []string
		if info.IsDir() {
			d, w, err = l.LoadDir(in)
		} else {
			d, w, err = l.LoadDocuments([]string{in})
		}
		if err != nil {
			return nil, warnings, err
		}
		docs = append(docs, d...)
		warnings = append(warnings, w...)
	}
	return docs, warnings, nil
}

func (l *Loader) matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range l.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
