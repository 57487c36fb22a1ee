package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	dexerrors "github.com/docdex/docdex/internal/errors"
)

// payloadIDField carries the original chunk id inside the point payload.
// The serverless backend only accepts UUID point ids, so chunk ids are
// mapped through a deterministic UUID and recovered from the payload.
const payloadIDField = "_id"

// RemoteStore implements VectorStore against a serverless vector index
// over HTTP. Upserts and deletes are issued with wait=true so the write
// is durable before the caller proceeds to the ledger.
type RemoteStore struct {
	baseURL    string
	apiKey     string
	collection string
	dimensions int
	metric     string
	client     *http.Client
}

// NewRemoteStore connects to a serverless index and ensures the
// collection exists with the configured dimensions. A collection built
// with different dimensions or metric is deleted and recreated.
func NewRemoteStore(cfg Config) (*RemoteStore, error) {
	if cfg.RemoteURL == "" {
		return nil, dexerrors.New(dexerrors.ErrCodeBackendMisconfigured, "serverless backend requires a remote URL", nil)
	}
	if cfg.Collection == "" {
		return nil, dexerrors.New(dexerrors.ErrCodeBackendMisconfigured, "serverless backend requires a collection name", nil)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}

	s := &RemoteStore{
		baseURL:    strings.TrimRight(cfg.RemoteURL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		metric:     cfg.Metric,
		client:     &http.Client{Timeout: 60 * time.Second},
	}

	if err := s.ensureCollection(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func remoteDistance(metric string) string {
	if metric == "l2" {
		return "Euclid"
	}
	return "Cosine"
}

// ensureCollection creates the collection if missing and recreates it
// when the persisted dimensions or metric disagree with the config.
func (s *RemoteStore) ensureCollection(ctx context.Context) error {
	var desc struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	status, err := s.do(ctx, http.MethodGet, "/collections/"+s.collection, nil, &desc)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return s.createCollection(ctx)
	}

	have := desc.Result.Config.Params.Vectors
	if have.Size != s.dimensions || have.Distance != remoteDistance(s.metric) {
		slog.Warn("recreating remote collection",
			slog.String("collection", s.collection),
			slog.Int("have_dimensions", have.Size),
			slog.Int("want_dimensions", s.dimensions))
		if _, err := s.do(ctx, http.MethodDelete, "/collections/"+s.collection, nil, nil); err != nil {
			return err
		}
		return s.createCollection(ctx)
	}
	return nil
}

func (s *RemoteStore) createCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimensions,
			"distance": remoteDistance(s.metric),
		},
	}
	status, err := s.do(ctx, http.MethodPut, "/collections/"+s.collection, body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return dexerrors.New(dexerrors.ErrCodeBackendMisconfigured,
			fmt.Sprintf("create collection returned status %d", status), nil)
	}
	return nil
}

// pointID maps a chunk id to the deterministic UUID the backend requires.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

type remotePoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Upsert writes vectors with wait=true so they are durable on return.
func (s *RemoteStore) Upsert(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	points := make([]remotePoint, 0, len(items))
	for _, it := range items {
		if len(it.Vector) != s.dimensions {
			return ErrDimensionMismatch{Expected: s.dimensions, Got: len(it.Vector)}
		}
		pl := map[string]any{
			payloadIDField: it.ID,
			"text":         it.Text,
		}
		for k, v := range it.Metadata {
			pl[k] = v
		}
		points = append(points, remotePoint{ID: pointID(it.ID), Vector: it.Vector, Payload: pl})
	}

	path := "/collections/" + s.collection + "/points?wait=true"
	status, err := s.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return dexerrors.New(dexerrors.ErrCodeBackendMisconfigured,
			fmt.Sprintf("upsert returned status %d", status), nil)
	}
	return nil
}

// Delete removes points by chunk id with wait=true.
func (s *RemoteStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pids := make([]string, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}

	path := "/collections/" + s.collection + "/points/delete?wait=true"
	status, err := s.do(ctx, http.MethodPost, path, map[string]any{"points": pids}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return dexerrors.New(dexerrors.ErrCodeBackendMisconfigured,
			fmt.Sprintf("delete returned status %d", status), nil)
	}
	return nil
}

// Contains retrieves the point for an id and reports whether it exists.
func (s *RemoteStore) Contains(ctx context.Context, id string) (bool, error) {
	var resp struct {
		Result []remotePoint `json:"result"`
	}
	path := "/collections/" + s.collection + "/points"
	body := map[string]any{"ids": []string{pointID(id)}}
	status, err := s.do(ctx, http.MethodPost, path, body, &resp)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, dexerrors.New(dexerrors.ErrCodeBackendMisconfigured,
			fmt.Sprintf("retrieve returned status %d", status), nil)
	}
	return len(resp.Result) > 0, nil
}

// AllIDs scrolls the collection and returns every chunk id.
func (s *RemoteStore) AllIDs(ctx context.Context) ([]string, error) {
	var ids []string
	var offset any

	for {
		body := map[string]any{
			"limit":        1000,
			"with_payload": map[string]any{"include": []string{payloadIDField}},
		}
		if offset != nil {
			body["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points         []remotePoint `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		path := "/collections/" + s.collection + "/points/scroll"
		status, err := s.do(ctx, http.MethodPost, path, body, &resp)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, dexerrors.New(dexerrors.ErrCodeBackendMisconfigured,
				fmt.Sprintf("scroll returned status %d", status), nil)
		}

		for _, p := range resp.Result.Points {
			if id, ok := p.Payload[payloadIDField].(string); ok {
				ids = append(ids, id)
			}
		}
		if resp.Result.NextPageOffset == nil {
			return ids, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

// Search returns the k nearest items to the query vector.
func (s *RemoteStore) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if len(query) != s.dimensions {
		return nil, ErrDimensionMismatch{Expected: s.dimensions, Got: len(query)}
	}

	body := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := "/collections/" + s.collection + "/points/search"
	status, err := s.do(ctx, http.MethodPost, path, body, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, dexerrors.New(dexerrors.ErrCodeBackendMisconfigured,
			fmt.Sprintf("search returned status %d", status), nil)
	}

	results := make([]SearchResult, 0, len(resp.Result))
	for _, hit := range resp.Result {
		r := SearchResult{Score: hit.Score, Metadata: make(map[string]string)}
		for k, v := range hit.Payload {
			sv, ok := v.(string)
			if !ok {
				continue
			}
			switch k {
			case payloadIDField:
				r.ID = sv
			case "text":
				r.Text = sv
			default:
				r.Metadata[k] = sv
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// Count returns the exact number of points in the collection.
func (s *RemoteStore) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := "/collections/" + s.collection + "/points/count"
	status, err := s.do(ctx, http.MethodPost, path, map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, dexerrors.New(dexerrors.ErrCodeBackendMisconfigured,
			fmt.Sprintf("count returned status %d", status), nil)
	}
	return resp.Result.Count, nil
}

// Close is a no-op; connections are managed by the HTTP client.
func (s *RemoteStore) Close() error { return nil }

// do issues one request and decodes the response into out when non-nil.
// Returns the HTTP status so callers can branch on 404.
func (s *RemoteStore) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, dexerrors.New(dexerrors.ErrCodeBackendMisconfigured, "remote index unreachable", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	}
	return resp.StatusCode, nil
}

var _ VectorStore = (*RemoteStore)(nil)
