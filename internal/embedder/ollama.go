package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pr0ta9/genesis/internal/httpclient"
)

// Ollama implements Embedder against a local or remote Ollama server.
type Ollama struct {
	client    *httpclient.Client
	baseURL   string
	model     string
	dimension int
}

// NewOllama constructs an Ollama embedder, defaulting to nomic-embed-text
// (768 dimensions) against localhost.
func NewOllama(cfg Config) *Ollama {
	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = 768
	}
	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &Ollama{client: httpclient.New(), baseURL: baseURL, model: model, dimension: dim}
}

func (e *Ollama) Dimension() int { return e.dimension }
func (e *Ollama) Model() string  { return e.model }

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedder: build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedder: decode ollama response: %w", err)
	}
	return parsed.Embedding, nil
}

// EmbedBatch calls Embed once per text: Ollama's embeddings endpoint
// takes a single input per request.
func (e *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

var _ Embedder = (*Ollama)(nil)
