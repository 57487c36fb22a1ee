package embed

import (
	"context"
	"time"

	dexerrors "github.com/docdex/docdex/internal/errors"
)

// RetryConfig configures retry behavior for embedding requests.
type RetryConfig struct {
	MaxRetries   int           // retry attempts beyond the initial one
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on the backoff delay
	Multiplier   float64       // exponential backoff multiplier
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryEmbedder wraps an Embedder and retries retryable failures with
// exponential backoff. Rate limit errors honor the server's Retry-After
// hint when it exceeds the computed backoff.
type RetryEmbedder struct {
	inner Embedder
	cfg   RetryConfig
}

// NewRetryEmbedder wraps the given embedder with retry behavior.
func NewRetryEmbedder(inner Embedder, cfg RetryConfig) *RetryEmbedder {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultRetryConfig().InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultRetryConfig().Multiplier
	}
	return &RetryEmbedder{inner: inner, cfg: cfg}
}

// withRetry runs fn with exponential backoff, giving up immediately on
// non-retryable errors or context cancellation.
func (r *RetryEmbedder) withRetry(ctx context.Context, fn func() error) error {
	delay := r.cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !dexerrors.IsRetryable(err) || attempt >= r.cfg.MaxRetries {
			break
		}

		wait := delay
		if hint := RetryAfter(err); hint > wait {
			wait = hint
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * r.cfg.Multiplier)
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}

	return lastErr
}

// Embed generates an embedding, retrying retryable failures.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.withRetry(ctx, func() error {
		var innerErr error
		vec, innerErr = r.inner.Embed(ctx, text)
		return innerErr
	})
	return vec, err
}

// EmbedBatch generates embeddings, retrying retryable failures.
func (r *RetryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := r.withRetry(ctx, func() error {
		var innerErr error
		vecs, innerErr = r.inner.EmbedBatch(ctx, texts)
		return innerErr
	})
	return vecs, err
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (r *RetryEmbedder) Dimensions() int { return r.inner.Dimensions() }

// ModelName returns the model identifier (passthrough to inner).
func (r *RetryEmbedder) ModelName() string { return r.inner.ModelName() }

// Available checks if the embedder is ready (passthrough to inner).
func (r *RetryEmbedder) Available(ctx context.Context) bool { return r.inner.Available(ctx) }

// Close releases resources and closes the inner embedder.
func (r *RetryEmbedder) Close() error { return r.inner.Close() }

var _ Embedder = (*RetryEmbedder)(nil)
