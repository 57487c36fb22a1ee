// Package config loads and validates docdex configuration.
// Configuration is an explicit value constructed once per process and
// passed to constructors; there are no process-wide cached instances.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	dexerrors "github.com/docdex/docdex/internal/errors"
)

// Store backends.
const (
	BackendLocal      = "local"
	BackendServerless = "serverless"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// Config is the complete docdex configuration.
type Config struct {
	Version    int              `yaml:"version"`
	CacheDir   string           `yaml:"cache_dir"`
	Collection string           `yaml:"collection"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ChunkingConfig configures the window chunker.
type ChunkingConfig struct {
	// WindowSize is the chunk window in characters.
	WindowSize int `yaml:"window_size"`
	// Overlap is the number of characters shared between adjacent windows.
	// Must be strictly smaller than WindowSize.
	Overlap int `yaml:"overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "openai" or "static".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// Dimensions of the embedding vectors. The vector backend is recreated
	// if an existing collection was built with a different dimensionality.
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	BaseURL    string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never lives in the config file.
	APIKeyEnv string `yaml:"api_key_env"`
	// CacheSize is the LRU embedding cache size (entries).
	CacheSize int `yaml:"cache_size"`
}

// StoreConfig configures the vector store backend.
type StoreConfig struct {
	// Backend selects the vector store: "local" (embedded, persisted under
	// CacheDir) or "serverless" (remote index over HTTP).
	Backend string `yaml:"backend"`
	// Metric is the distance metric: "cos" or "l2".
	Metric string `yaml:"metric"`
	// RemoteURL is the serverless endpoint (serverless backend only).
	RemoteURL string `yaml:"remote_url"`
	// RemoteAPIKeyEnv names the env var holding the serverless API key.
	RemoteAPIKeyEnv string `yaml:"remote_api_key_env"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version:    1,
		CacheDir:   ".cache",
		Collection: "documents",
		Chunking: ChunkingConfig{
			WindowSize: 512,
			Overlap:    64,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   ProviderOpenAI,
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  32,
			BaseURL:    "https://api.openai.com/v1",
			APIKeyEnv:  "OPENAI_API_KEY",
			CacheSize:  1000,
		},
		Store: StoreConfig{
			Backend:         BackendLocal,
			Metric:          "cos",
			RemoteAPIKeyEnv: "PINECONE_API_KEY",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus env overrides
	case err != nil:
		return nil, dexerrors.Wrap(dexerrors.ErrCodeConfigNotFound, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, dexerrors.New(dexerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("parse %s: %v", path, err), err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies DOCDEX_* environment variables on top of the
// file configuration. Env always wins.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCDEX_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("DOCDEX_COLLECTION"); v != "" {
		cfg.Collection = v
	}
	if v := os.Getenv("DOCDEX_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("DOCDEX_REMOTE_URL"); v != "" {
		cfg.Store.RemoteURL = v
	}
	if v := os.Getenv("DOCDEX_EMBEDDINGS_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCDEX_EMBEDDINGS_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("DOCDEX_EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("DOCDEX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Chunking.WindowSize <= 0 {
		return dexerrors.New(dexerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("chunking.window_size must be positive, got %d", c.Chunking.WindowSize), nil)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.WindowSize {
		return dexerrors.New(dexerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("chunking.overlap must be in [0, window_size), got %d", c.Chunking.Overlap), nil)
	}
	if c.Embeddings.Dimensions <= 0 {
		return dexerrors.New(dexerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions), nil)
	}
	switch c.Store.Backend {
	case BackendLocal:
	case BackendServerless:
		if c.Store.RemoteURL == "" {
			return dexerrors.New(dexerrors.ErrCodeConfigInvalid,
				"store.remote_url is required for the serverless backend", nil)
		}
	default:
		return dexerrors.New(dexerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown store backend %q", c.Store.Backend), nil)
	}
	switch c.Embeddings.Provider {
	case ProviderOpenAI, ProviderStatic:
	default:
		return dexerrors.New(dexerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embeddings provider %q", c.Embeddings.Provider), nil)
	}
	return nil
}

// Namespace returns the ledger namespace for this configuration:
// "{store_kind}/{collection}". Separate backends or collections never
// collide on ledger keys.
func (c *Config) Namespace() string {
	return c.Store.Backend + "/" + c.Collection
}

// LedgerPath returns the path of the ledger database under the cache dir.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.CacheDir, "ledger.db")
}

// VectorPath returns the local vector store path for this collection.
func (c *Config) VectorPath() string {
	return filepath.Join(c.CacheDir, "vectors", c.Collection+".hnsw")
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
