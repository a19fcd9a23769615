// Package embedder produces vector embeddings for the precedent cache's
// semantic similarity search.
package embedder

import "context"

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// Config selects and configures exactly one embedder backend.
type Config struct {
	Provider  string `yaml:"provider"` // "openai", "ollama", "cohere"
	APIKey    string `yaml:"api_key,omitempty"`
	Host      string `yaml:"host,omitempty"`
	Model     string `yaml:"model,omitempty"`
	Dimension int    `yaml:"dimension,omitempty"`
}

// New constructs the embedder named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "cohere":
		return NewCohere(cfg), nil
	default:
		return nil, &ErrUnknownProvider{Provider: cfg.Provider}
	}
}

// ErrUnknownProvider is returned by New for an unrecognized provider name.
type ErrUnknownProvider struct{ Provider string }

func (e *ErrUnknownProvider) Error() string {
	return "embedder: unknown provider " + e.Provider
}
