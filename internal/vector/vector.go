// Package vector defines the pluggable vector-store abstraction the
// precedent cache is built on, plus the providers Genesis ships:
// chromem-go (embedded, zero-config default), Qdrant (self-hosted
// production), and Pinecone (managed cloud).
package vector

import (
	"context"
	"fmt"
)

// Result is one hit returned by a similarity search.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// Provider is the interface every vector backend implements. Genesis's
// precedent cache is written against this interface only, never a
// concrete backend, so swapping chromem for qdrant in production config
// requires no code change.
type Provider interface {
	Upsert(ctx context.Context, collection string, id string, embedding []float32, metadata map[string]any) error
	Search(ctx context.Context, collection string, embedding []float32, topK int) ([]Result, error)
	SearchWithFilter(ctx context.Context, collection string, embedding []float32, topK int, filter map[string]any) ([]Result, error)
	Delete(ctx context.Context, collection string, id string) error
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error
	CreateCollection(ctx context.Context, collection string, dimension int) error
	DeleteCollection(ctx context.Context, collection string) error
	Name() string
	Close() error
}

// ProviderType identifies which backend a ProviderConfig constructs.
type ProviderType string

const (
	ProviderChromem  ProviderType = "chromem"
	ProviderQdrant   ProviderType = "qdrant"
	ProviderPinecone ProviderType = "pinecone"
)

// ProviderConfig selects and configures exactly one backend.
type ProviderConfig struct {
	Type     ProviderType    `yaml:"type"`
	Chromem  *ChromemConfig  `yaml:"chromem,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty"`
}

// SetDefaults fills in a zero-config chromem provider when Type is unset.
func (c *ProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = ProviderChromem
	}
	if c.Type == ProviderChromem && c.Chromem == nil {
		c.Chromem = &ChromemConfig{}
	}
}

// Validate checks that the selected backend's required fields are set.
func (c *ProviderConfig) Validate() error {
	switch c.Type {
	case ProviderChromem:
		return nil
	case ProviderQdrant:
		if c.Qdrant == nil || c.Qdrant.Host == "" {
			return fmt.Errorf("vector: qdrant host is required")
		}
		return nil
	case ProviderPinecone:
		if c.Pinecone == nil || c.Pinecone.APIKey == "" {
			return fmt.Errorf("vector: pinecone api_key is required")
		}
		return nil
	case "":
		return fmt.Errorf("vector: provider type is required")
	default:
		return fmt.Errorf("vector: unknown provider type %q", c.Type)
	}
}

// NewProvider constructs the backend named by cfg.Type.
func NewProvider(cfg *ProviderConfig) (Provider, error) {
	if cfg == nil {
		cfg = &ProviderConfig{}
		cfg.SetDefaults()
	}

	switch cfg.Type {
	case ProviderChromem:
		chromemCfg := ChromemConfig{}
		if cfg.Chromem != nil {
			chromemCfg = *cfg.Chromem
		}
		return NewChromemProvider(chromemCfg)
	case ProviderQdrant:
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("vector: qdrant configuration is required")
		}
		return NewQdrantProvider(*cfg.Qdrant)
	case ProviderPinecone:
		if cfg.Pinecone == nil {
			return nil, fmt.Errorf("vector: pinecone configuration is required")
		}
		return NewPineconeProvider(*cfg.Pinecone)
	default:
		return nil, fmt.Errorf("vector: unknown provider type %q", cfg.Type)
	}
}
