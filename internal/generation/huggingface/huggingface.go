// Package huggingface runs text-to-text generation through the Hugging Face
// inference API (or any server exposing the same route).
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api-inference.huggingface.co"
	DefaultModel   = "google/flan-t5-base"
)

// Config configures the generation client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// Generator calls the text2text-generation task for one model.
type Generator struct {
	baseURL string
	token   string
	model   string
	client  *http.Client
}

// NewGenerator creates a generator. The token env var may be empty.
func NewGenerator(cfg Config) *Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	var token string
	if cfg.APIKeyEnv != "" {
		token = os.Getenv(cfg.APIKeyEnv)
	}
	return &Generator{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   token,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the model identifier.
func (g *Generator) Name() string { return g.model }

type generateRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

type generated struct {
	GeneratedText string `json:"generated_text"`
}

// Generate returns the model output for prompt.
func (g *Generator) Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	reqBody := generateRequest{
		Inputs:  prompt,
		Options: map[string]any{"wait_for_model": true},
	}
	if maxNewTokens > 0 {
		reqBody.Parameters = map[string]any{"max_new_tokens": maxNewTokens}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/models/%s", g.baseURL, g.model), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("huggingface error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var out []generated
	if err := json.Unmarshal(payload, &out); err != nil {
		// Some servers return a single object instead of a list.
		var single generated
		if err2 := json.Unmarshal(payload, &single); err2 != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		out = []generated{single}
	}
	if len(out) == 0 {
		return "", errors.New("huggingface returned no generations")
	}
	return out[0].GeneratedText, nil
}
