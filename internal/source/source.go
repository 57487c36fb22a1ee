// Package source yields the documents an indexing run operates on.
// Extraction of rich formats happens upstream; this package deals in
// already-textual files and staged payloads.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	dexerrors "github.com/docdex/docdex/internal/errors"
)

// Document is one unit of source text with its identity.
type Document struct {
	// Source is the document identity used for chunk ids and as the
	// reconciliation group. For files this is the cleaned path.
	Source   string
	Text     string
	Metadata map[string]string
}

// Source yields a finite sequence of documents per indexing run.
type Source interface {
	Documents(ctx context.Context) ([]Document, error)
}

// Extractor converts raw file bytes into indexable text. Rich formats
// (PDF and the like) plug in here; the default handles plain text only.
// Returning an empty string skips the file without error.
type Extractor func(path string, data []byte) (string, error)

// DirSource walks a directory tree and yields each readable text file.
type DirSource struct {
	root        string
	extensions  map[string]bool
	maxFileSize int64
	extract     Extractor
}

// DefaultMaxFileSize caps the size of a single source document.
const DefaultMaxFileSize = 10 << 20 // 10 MB

// defaultExtensions are the file types indexed when none are configured.
var defaultExtensions = []string{".txt", ".md", ".markdown", ".rst", ".text"}

// DirOption configures a DirSource.
type DirOption func(*DirSource)

// WithExtensions replaces the indexed extension set (values include the dot).
func WithExtensions(exts ...string) DirOption {
	return func(d *DirSource) {
		d.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			d.extensions[strings.ToLower(e)] = true
		}
	}
}

// WithExtractor installs a text extractor for rich file formats.
func WithExtractor(fn Extractor) DirOption {
	return func(d *DirSource) {
		d.extract = fn
	}
}

// WithMaxFileSize caps the per-file size in bytes.
func WithMaxFileSize(n int64) DirOption {
	return func(d *DirSource) {
		if n > 0 {
			d.maxFileSize = n
		}
	}
}

// NewDirSource creates a source over the tree rooted at root.
func NewDirSource(root string, opts ...DirOption) (*DirSource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, dexerrors.ExtractionError(fmt.Sprintf("source directory %s", root), err)
	}
	if !info.IsDir() {
		return nil, dexerrors.ExtractionError(fmt.Sprintf("%s is not a directory", root), nil)
	}

	d := &DirSource{root: root, maxFileSize: DefaultMaxFileSize}
	WithExtensions(defaultExtensions...)(d)
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Documents walks the tree and returns one document per indexable file.
// Hidden directories and symlinks are skipped. Oversized and binary
// files are skipped rather than failing the run.
func (d *DirSource) Documents(ctx context.Context) ([]Document, error) {
	var docs []Document

	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		name := entry.Name()
		if entry.IsDir() {
			if strings.HasPrefix(name, ".") && path != d.root {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !d.extensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if info.Size() > d.maxFileSize {
			return nil
		}

		doc, err := d.read(path)
		if err != nil {
			// Unreadable documents are isolated, not fatal to the walk
			return nil
		}
		if doc != nil {
			docs = append(docs, *doc)
		}
		return nil
	})
	if err != nil {
		return nil, dexerrors.ExtractionError(fmt.Sprintf("walk %s", d.root), err)
	}
	return docs, nil
}

// read loads one file, going through the extractor when one is set.
func (d *DirSource) read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dexerrors.ExtractionError(fmt.Sprintf("read %s", path), err)
	}

	var text string
	if d.extract != nil {
		text, err = d.extract(path, data)
		if err != nil {
			return nil, dexerrors.ExtractionError(fmt.Sprintf("extract %s", path), err)
		}
	} else {
		if isBinary(data) {
			return nil, nil
		}
		text = string(data)
	}
	if text == "" {
		return nil, nil
	}

	return &Document{
		Source: filepath.Clean(path),
		Text:   text,
		Metadata: map[string]string{
			"filename": filepath.Base(path),
		},
	}, nil
}

// ReadFile loads one plain-text file as a document. Binary content
// returns nil without error so callers can skip it silently.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dexerrors.ExtractionError(fmt.Sprintf("read %s", path), err)
	}
	if isBinary(data) {
		return nil, nil
	}
	return &Document{
		Source: filepath.Clean(path),
		Text:   string(data),
		Metadata: map[string]string{
			"filename": filepath.Base(path),
		},
	}, nil
}

// isBinary sniffs the first 8KB for a NUL byte.
func isBinary(data []byte) bool {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

// StaticSource yields a fixed document list; used for single-document
// runs and tests.
type StaticSource []Document

// Documents returns the fixed list.
func (s StaticSource) Documents(ctx context.Context) ([]Document, error) {
	return s, nil
}
