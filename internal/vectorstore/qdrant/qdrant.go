package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"documind/internal/domain"
	"documind/internal/vectorstore"
)

// pointNamespace seeds the UUIDv5 point ids derived from chunk ids.
var pointNamespace = uuid.MustParse("6f1c1f4e-5d0a-4f8e-9b8e-2f6d3c1a7b90")

const upsertBatch = 256

// Storage is a minimal REST client to Qdrant.
//
// The configured collection name is used as an alias. Each Replace uploads
// into a new versioned collection and then repoints the alias, so searches
// never hit a half-written collection.
type Storage struct {
	url    string
	apiKey string
	alias  string
	client *http.Client
	now    func() time.Time
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		alias:  cfg.Collection,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Replace builds a fresh collection, then swaps the alias to it and drops
// the collection it used to point at.
func (s *Storage) Replace(ctx context.Context, chunks []domain.Chunk, vectors [][]float32, meta vectorstore.Meta) error {
	dim, err := vectorstore.Validate(chunks, vectors)
	if err != nil {
		return err
	}
	if dim == 0 {
		// Qdrant needs a positive size even for an empty collection.
		dim = 1
		if meta.Dimension > 0 {
			dim = meta.Dimension
		}
	}
	builtAt := meta.BuiltAt
	if builtAt.IsZero() {
		builtAt = s.now().UTC()
	}
	target := fmt.Sprintf("%s_%d", s.alias, builtAt.UnixNano())

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
		"metadata": map[string]any{
			"model":    meta.Model,
			"count":    len(chunks),
			"built_at": builtAt.Format(time.RFC3339Nano),
		},
	}
	if err := s.do(ctx, http.MethodPut, "/collections/"+target, body, nil); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	for start := 0; start < len(chunks); start += upsertBatch {
		end := start + upsertBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		points := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, map[string]any{
				"id":      PointID(chunks[i].ID),
				"vector":  vectors[i],
				"payload": payload(chunks[i], i),
			})
		}
		if err := s.do(ctx, http.MethodPut, "/collections/"+target+"/points?wait=true", map[string]any{"points": points}, nil); err != nil {
			s.drop(target)
			return fmt.Errorf("upsert points: %w", err)
		}
	}

	previous, err := s.aliasTarget(ctx)
	if err != nil {
		s.drop(target)
		return err
	}
	actions := []map[string]any{}
	if previous != "" {
		actions = append(actions, map[string]any{"delete_alias": map[string]any{"alias_name": s.alias}})
	}
	actions = append(actions, map[string]any{"create_alias": map[string]any{"collection_name": target, "alias_name": s.alias}})
	if err := s.do(ctx, http.MethodPost, "/collections/aliases", map[string]any{"actions": actions}, nil); err != nil {
		s.drop(target)
		return fmt.Errorf("swap alias: %w", err)
	}
	if previous != "" && previous != target {
		s.drop(previous)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, "/collections/"+s.alias+"/points/search", req, &resp)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{Chunk: chunkFromPayload(r.Payload), Score: r.Score})
	}
	return results, nil
}

// Meta reads the metadata stored on the collection the alias points at.
func (s *Storage) Meta(ctx context.Context) (vectorstore.Meta, bool, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
				Metadata map[string]any `json:"metadata"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, "/collections/"+s.alias, nil, &resp)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return vectorstore.Meta{}, false, nil
	}
	if err != nil {
		return vectorstore.Meta{}, false, err
	}
	meta := vectorstore.Meta{
		Dimension: resp.Result.Config.Params.Vectors.Size,
		Count:     resp.Result.PointsCount,
	}
	if m, ok := resp.Result.Config.Metadata["model"].(string); ok {
		meta.Model = m
	}
	if b, ok := resp.Result.Config.Metadata["built_at"].(string); ok {
		meta.BuiltAt, _ = time.Parse(time.RFC3339Nano, b)
	}
	return meta, true, nil
}

func (s *Storage) Close() error { return nil }

// PointID maps a chunk id to the UUID Qdrant requires.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (s *Storage) aliasTarget(ctx context.Context) (string, error) {
	var resp struct {
		Result struct {
			Aliases []struct {
				AliasName      string `json:"alias_name"`
				CollectionName string `json:"collection_name"`
			} `json:"aliases"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/aliases", nil, &resp); err != nil {
		return "", fmt.Errorf("list aliases: %w", err)
	}
	for _, a := range resp.Result.Aliases {
		if a.AliasName == s.alias {
			return a.CollectionName, nil
		}
	}
	return "", nil
}

// drop deletes a collection, ignoring failures; it runs on cleanup paths.
func (s *Storage) drop(collection string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	_ = s.do(ctx, http.MethodDelete, "/collections/"+collection, nil, nil)
}

func payload(c domain.Chunk, seq int) map[string]any {
	p := map[string]any{
		"chunk_id":    c.ID,
		"source_path": c.SourcePath,
		"index":       c.Index,
		"seq":         seq,
		"text":        c.Text,
	}
	if c.HasOffset {
		p["start_offset"] = c.StartOffset
	}
	if len(c.Metadata) > 0 {
		p["metadata"] = c.Metadata
	}
	return p
}

func chunkFromPayload(p map[string]any) domain.Chunk {
	chunk := domain.Chunk{}
	if v, ok := p["chunk_id"].(string); ok {
		chunk.ID = v
	}
	if v, ok := p["source_path"].(string); ok {
		chunk.SourcePath = v
	}
	if v, ok := p["index"].(float64); ok {
		chunk.Index = int(v)
	}
	if v, ok := p["start_offset"].(float64); ok {
		chunk.StartOffset, chunk.HasOffset = int(v), true
	}
	if v, ok := p["text"].(string); ok {
		chunk.Text = v
	}
	if v, ok := p["metadata"].(map[string]any); ok {
		chunk.Metadata = v
	}
	return chunk
}

type statusError struct {
	method, path string
	code         int
	body         string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.path, e.code, e.body)
}

func (s *Storage) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{method: method, path: path, code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
