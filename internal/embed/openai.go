package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	dexerrors "github.com/docdex/docdex/internal/errors"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultBatchSize     = 100
	defaultHTTPTimeout   = 60 * time.Second
)

// OpenAIConfig configures the remote embedding client.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	// BatchSize caps the number of inputs per request.
	BatchSize int
	Timeout   time.Duration
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIEmbedder creates a remote embedder. APIKey may be empty for
// compatible servers that run without auth.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}

	return &OpenAIEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for all texts, splitting the work into
// requests of at most BatchSize inputs. Order is preserved.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedRequest(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{
		Model: e.cfg.Model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("encode embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dexerrors.New(dexerrors.ErrCodeEmbeddingTimeout, "embeddings request timed out", err)
		}
		return nil, dexerrors.EmbeddingError("embeddings endpoint unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		de := dexerrors.New(dexerrors.ErrCodeEmbeddingRateLimited, "embeddings rate limited", nil)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			de = de.WithDetail("retry_after", ra)
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, de
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, dexerrors.EmbeddingError(
			fmt.Sprintf("embeddings endpoint returned status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		var er embeddingsResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&er)
		msg := fmt.Sprintf("embeddings request failed with status %d", resp.StatusCode)
		if er.Error != nil && er.Error.Message != "" {
			msg = er.Error.Message
		}
		return nil, dexerrors.New(dexerrors.ErrCodeInvalidInput, msg, nil)
	}

	var er embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, dexerrors.EmbeddingError("decode embeddings response", err)
	}
	if len(er.Data) != len(texts) {
		return nil, dexerrors.EmbeddingError(
			fmt.Sprintf("embeddings response has %d vectors, expected %d", len(er.Data), len(texts)), nil)
	}

	// Responses may arrive out of order; index is authoritative.
	sort.Slice(er.Data, func(i, j int) bool { return er.Data[i].Index < er.Data[j].Index })

	vecs := make([][]float32, len(texts))
	for i, d := range er.Data {
		if len(d.Embedding) != e.cfg.Dimensions {
			return nil, dexerrors.New(dexerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("model returned %d dimensions, configured %d", len(d.Embedding), e.cfg.Dimensions), nil)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimensionality.
func (e *OpenAIEmbedder) Dimensions() int { return e.cfg.Dimensions }

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string { return e.cfg.Model }

// Available probes the endpoint with a single empty-cost request.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.embedRequest(ctx, []string{"ping"})
	return err == nil
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// RetryAfter extracts the server-suggested delay from a rate limit error.
// Returns 0 when the error carries no hint.
func RetryAfter(err error) time.Duration {
	var de *dexerrors.DexError
	if !errors.As(err, &de) {
		return 0
	}
	secs, convErr := strconv.Atoi(de.Details["retry_after"])
	if convErr != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

var _ Embedder = (*OpenAIEmbedder)(nil)
