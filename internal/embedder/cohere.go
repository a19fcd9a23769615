package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pr0ta9/genesis/internal/httpclient"
)

// Cohere implements Embedder against Cohere's embed endpoint.
type Cohere struct {
	client    *httpclient.Client
	apiKey    string
	baseURL   string
	model     string
	dimension int
}

// NewCohere constructs a Cohere embedder, defaulting to embed-english-v3.0
// (1024 dimensions).
func NewCohere(cfg Config) *Cohere {
	model := cfg.Model
	if model == "" {
		model = "embed-english-v3.0"
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = 1024
	}
	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.cohere.com/v1"
	}

	return &Cohere{
		client:    httpclient.New(),
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     model,
		dimension: dim,
	}
}

func (e *Cohere) Dimension() int { return e.dimension }
func (e *Cohere) Model() string  { return e.model }

func (e *Cohere) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type cohereEmbedRequest struct {
	Model     string   `json:"model"`
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedBatch sends all texts in one request: Cohere's embed endpoint
// natively supports batching, unlike Ollama's.
func (e *Cohere) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(cohereEmbedRequest{Model: e.model, Texts: texts, InputType: "search_document"})
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal cohere request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedder: build cohere request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: cohere request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed cohereEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedder: decode cohere response: %w", err)
	}
	return parsed.Embeddings, nil
}

var _ Embedder = (*Cohere)(nil)
