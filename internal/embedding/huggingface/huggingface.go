// Package huggingface embeds text with a sentence-transformers model served
// by the Hugging Face feature-extraction pipeline.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api-inference.huggingface.co"
	DefaultModel   = "sentence-transformers/all-MiniLM-L6-v2"
)

// Config configures the feature-extraction client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// Embedder calls the feature-extraction pipeline for a fixed model.
type Embedder struct {
	baseURL string
	token   string
	model   string
	client  *http.Client
}

// NewEmbedder creates a client. The API token is optional so that a local
// inference server can be used without one.
func NewEmbedder(cfg Config) *Embedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	var token string
	if cfg.APIKeyEnv != "" {
		token = os.Getenv(cfg.APIKeyEnv)
	}
	return &Embedder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   token,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the model identifier.
func (e *Embedder) Name() string { return e.model }

type featureRequest struct {
	Inputs  []string       `json:"inputs"`
	Options map[string]any `json:"options,omitempty"`
}

// Embed returns one pooled sentence embedding per text.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(featureRequest{
		Inputs:  texts,
		Options: map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("huggingface error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var vecs [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vecs); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("huggingface returned %d embeddings for %d inputs", len(vecs), len(texts))
	}
	return vecs, nil
}
