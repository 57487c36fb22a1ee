package embed

import (
	"fmt"
	"os"

	"github.com/docdex/docdex/internal/config"
)

// New builds the embedder stack from configuration: the selected provider
// wrapped in retry and LRU caching layers.
func New(cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder

	switch cfg.Provider {
	case config.ProviderStatic:
		e, err := NewStaticEmbedder(cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		inner = e
	case config.ProviderOpenAI, "":
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     os.Getenv(cfg.APIKeyEnv),
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}

	retried := NewRetryEmbedder(inner, DefaultRetryConfig())
	return NewCachedEmbedder(retried, cfg.CacheSize), nil
}
