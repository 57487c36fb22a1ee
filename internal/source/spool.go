package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	dexerrors "github.com/docdex/docdex/internal/errors"
)

// Spool stages incoming payloads (uploads, stdin) as files so the rest
// of the pipeline only ever deals with paths. Each payload gets a
// collision-free name.
type Spool struct {
	dir string
}

// NewSpool creates the staging directory if needed.
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dexerrors.New(dexerrors.ErrCodeSpoolFailed,
			fmt.Sprintf("create spool directory %s", dir), err)
	}
	return &Spool{dir: dir}, nil
}

// Stage writes r to a uniquely named file and returns its path. name is
// the original document name preserved for provenance; its extension is
// kept so downstream type detection still works.
func (s *Spool) Stage(name string, r io.Reader) (string, error) {
	staged := filepath.Join(s.dir, uuid.NewString()+filepath.Ext(name))

	f, err := os.Create(staged)
	if err != nil {
		return "", dexerrors.New(dexerrors.ErrCodeSpoolFailed, "create spool file", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(staged)
		return "", dexerrors.New(dexerrors.ErrCodeSpoolFailed,
			fmt.Sprintf("spool %s", name), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(staged)
		return "", dexerrors.New(dexerrors.ErrCodeSpoolFailed, "close spool file", err)
	}
	return staged, nil
}

// Remove deletes a staged file. Missing files are not an error.
func (s *Spool) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Dir returns the staging directory.
func (s *Spool) Dir() string { return s.dir }
