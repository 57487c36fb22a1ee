package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDirSource_YieldsTextFilesWithProvenance(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.md"), "alpha")
	writeTestFile(t, filepath.Join(dir, "nested", "b.txt"), "beta")

	src, err := NewDirSource(dir)
	require.NoError(t, err)

	docs, err := src.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	bySource := make(map[string]Document)
	for _, d := range docs {
		bySource[d.Metadata["filename"]] = d
	}
	assert.Equal(t, "alpha", bySource["a.md"].Text)
	assert.Equal(t, "beta", bySource["b.txt"].Text)
	assert.Equal(t, filepath.Join(dir, "nested", "b.txt"), bySource["b.txt"].Source)
}

func TestDirSource_SkipsIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "keep.md"), "kept")
	writeTestFile(t, filepath.Join(dir, "photo.jpg"), "not text")
	writeTestFile(t, filepath.Join(dir, ".git", "config.txt"), "hidden dir")
	writeTestFile(t, filepath.Join(dir, "binary.txt"), "bin\x00ary")
	writeTestFile(t, filepath.Join(dir, "huge.txt"), strings.Repeat("x", 100))

	src, err := NewDirSource(dir, WithMaxFileSize(50))
	require.NoError(t, err)

	docs, err := src.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "kept", docs[0].Text)
}

func TestDirSource_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "page.html"), "<p>hi</p>")
	writeTestFile(t, filepath.Join(dir, "notes.md"), "notes")

	src, err := NewDirSource(dir, WithExtensions(".html"))
	require.NoError(t, err)

	docs, err := src.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "page.html", docs[0].Metadata["filename"])
}

func TestDirSource_ExtractorConvertsRichFormats(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "doc.pdf"), "%PDF-raw-bytes")
	writeTestFile(t, filepath.Join(dir, "empty.pdf"), "%PDF-nothing-inside")

	src, err := NewDirSource(dir,
		WithExtensions(".pdf"),
		WithExtractor(func(path string, data []byte) (string, error) {
			if filepath.Base(path) == "empty.pdf" {
				return "", nil // no text, skipped silently
			}
			return "extracted text", nil
		}))
	require.NoError(t, err)

	docs, err := src.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "extracted text", docs[0].Text)
	assert.Equal(t, "doc.pdf", docs[0].Metadata["filename"])
}

func TestNewDirSource_RejectsMissingOrFileRoot(t *testing.T) {
	_, err := NewDirSource(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.txt")
	writeTestFile(t, file, "x")
	_, err = NewDirSource(file)
	assert.Error(t, err)
}

func TestReadFile_BinaryContentIsSkippedSilently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.txt")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x00, 0x47}, 0o644))

	doc, err := ReadFile(path)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestSpool_StagesPayloadsWithoutCollisions(t *testing.T) {
	s, err := NewSpool(filepath.Join(t.TempDir(), "spool"))
	require.NoError(t, err)

	p1, err := s.Stage("report.pdf", strings.NewReader("payload one"))
	require.NoError(t, err)
	p2, err := s.Stage("report.pdf", strings.NewReader("payload two"))
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
	assert.Equal(t, ".pdf", filepath.Ext(p1))

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "payload one", string(data))

	require.NoError(t, s.Remove(p1))
	require.NoError(t, s.Remove(p1)) // already gone is fine
	_, err = os.Stat(p1)
	assert.True(t, os.IsNotExist(err))
}
