package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dexerrors "github.com/docdex/docdex/internal/errors"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Chunking.WindowSize)
	assert.Equal(t, 64, cfg.Chunking.Overlap)
	assert.Equal(t, BackendLocal, cfg.Store.Backend)
	assert.Equal(t, ProviderOpenAI, cfg.Embeddings.Provider)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docdex.yaml")
	content := `
collection: reports
chunking:
  window_size: 256
  overlap: 32
embeddings:
  provider: static
  dimensions: 256
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "reports", cfg.Collection)
	assert.Equal(t, 256, cfg.Chunking.WindowSize)
	assert.Equal(t, 32, cfg.Chunking.Overlap)
	assert.Equal(t, ProviderStatic, cfg.Embeddings.Provider)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docdex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collection: from-file\n"), 0o644))

	t.Setenv("DOCDEX_COLLECTION", "from-env")
	t.Setenv("DOCDEX_EMBEDDINGS_DIMENSIONS", "768")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Collection)
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docdex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, dexerrors.ErrCodeConfigInvalid, dexerrors.GetCode(err))
}

func TestValidate_RejectsOverlapNotBelowWindow(t *testing.T) {
	cfg := Default()
	cfg.Chunking.WindowSize = 64
	cfg.Chunking.Overlap = 64

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, dexerrors.ErrCodeConfigInvalid, dexerrors.GetCode(err))
}

func TestValidate_ServerlessRequiresRemoteURL(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = BackendServerless
	cfg.Store.RemoteURL = ""

	require.Error(t, cfg.Validate())

	cfg.Store.RemoteURL = "https://index.example.com"
	require.NoError(t, cfg.Validate())
}

func TestNamespace_CombinesBackendAndCollection(t *testing.T) {
	cfg := Default()
	cfg.Collection = "papers"

	assert.Equal(t, "local/papers", cfg.Namespace())

	cfg.Store.Backend = BackendServerless
	assert.Equal(t, "serverless/papers", cfg.Namespace())
}

func TestSave_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "docdex.yaml")

	cfg := Default()
	cfg.Collection = "roundtrip"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", loaded.Collection)
}
