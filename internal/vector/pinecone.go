package vector

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig configures the managed-cloud Pinecone backend.
type PineconeConfig struct {
	APIKey    string `yaml:"api_key"`
	Host      string `yaml:"host,omitempty"`
	IndexName string `yaml:"index_name"`
}

// PineconeProvider implements Provider against the Pinecone API.
type PineconeProvider struct {
	client    *pinecone.Client
	indexName string
}

// NewPineconeProvider authenticates a Pinecone client.
func NewPineconeProvider(cfg PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vector: pinecone api_key is required")
	}

	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("vector: create pinecone client: %w", err)
	}

	indexName := cfg.IndexName
	if indexName == "" {
		indexName = "genesis-precedents"
	}
	return &PineconeProvider{client: client, indexName: indexName}, nil
}

func (p *PineconeProvider) Name() string { return "pinecone" }

func (p *PineconeProvider) index(collection string) string {
	if collection == "" {
		return p.indexName
	}
	return collection
}

func (p *PineconeProvider) connect(ctx context.Context, collection string) (*pinecone.IndexConnection, error) {
	indexName := p.index(collection)
	index, err := p.client.DescribeIndex(ctx, indexName)
	if err != nil {
		return nil, fmt.Errorf("vector: describe index %q: %w", indexName, err)
	}
	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: index.Host})
	if err != nil {
		return nil, fmt.Errorf("vector: connect to index %q: %w", indexName, err)
	}
	return conn, nil
}

func (p *PineconeProvider) Upsert(ctx context.Context, collection, id string, embedding []float32, metadata map[string]any) error {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	var meta *pinecone.Metadata
	if len(metadata) > 0 {
		m := make(map[string]any, len(metadata))
		for k, v := range metadata {
			m[k] = v
		}
		meta, err = structpb.NewStruct(m)
		if err != nil {
			return fmt.Errorf("vector: convert metadata: %w", err)
		}
	}

	if _, err := conn.UpsertVectors(ctx, []*pinecone.Vector{{Id: id, Values: embedding, Metadata: meta}}); err != nil {
		return fmt.Errorf("vector: upsert vector %q: %w", id, err)
	}
	return nil
}

func (p *PineconeProvider) Search(ctx context.Context, collection string, embedding []float32, topK int) ([]Result, error) {
	return p.SearchWithFilter(ctx, collection, embedding, topK, nil)
}

func (p *PineconeProvider) SearchWithFilter(ctx context.Context, collection string, embedding []float32, topK int, filter map[string]any) ([]Result, error) {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var metaFilter *pinecone.MetadataFilter
	if len(filter) > 0 {
		f := make(map[string]any, len(filter))
		for k, v := range filter {
			f[k] = v
		}
		metaFilter, err = structpb.NewStruct(f)
		if err != nil {
			return nil, fmt.Errorf("vector: convert filter: %w", err)
		}
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          embedding,
		TopK:            uint32(topK),
		MetadataFilter:  metaFilter,
		IncludeMetadata: true,
		IncludeValues:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: query pinecone: %w", err)
	}
	return convertPineconeResults(resp.Matches), nil
}

func (p *PineconeProvider) Delete(ctx context.Context, collection, id string) error {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.DeleteVectorsById(ctx, []string{id}); err != nil {
		return fmt.Errorf("vector: delete vector %q: %w", id, err)
	}
	return nil
}

func (p *PineconeProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	f := make(map[string]any, len(filter))
	for k, v := range filter {
		f[k] = v
	}
	metaFilter, err := structpb.NewStruct(f)
	if err != nil {
		return fmt.Errorf("vector: convert filter: %w", err)
	}
	if err := conn.DeleteVectorsByFilter(ctx, metaFilter); err != nil {
		return fmt.Errorf("vector: delete by filter: %w", err)
	}
	return nil
}

// CreateCollection checks that the named index already exists; Pinecone
// indexes are provisioned out of band via the console or management API.
func (p *PineconeProvider) CreateCollection(ctx context.Context, collection string, _ int) error {
	indexName := p.index(collection)
	indexes, err := p.client.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("vector: list indexes: %w", err)
	}
	for _, idx := range indexes {
		if idx.Name == indexName {
			return nil
		}
	}
	return fmt.Errorf("vector: pinecone index %q does not exist; create it via the Pinecone console first", indexName)
}

func (p *PineconeProvider) DeleteCollection(_ context.Context, collection string) error {
	return fmt.Errorf("vector: pinecone index deletion must be done via the Pinecone console, not index %q", p.index(collection))
}

func (p *PineconeProvider) Close() error { return nil }

func convertPineconeResults(matches []*pinecone.ScoredVector) []Result {
	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		if m.Vector == nil {
			continue
		}
		metadata := make(map[string]any)
		if m.Vector.Metadata != nil {
			for k, v := range m.Vector.Metadata.AsMap() {
				metadata[k] = v
			}
		}
		content, _ := metadata["content"].(string)
		out = append(out, Result{
			ID:       m.Vector.Id,
			Content:  content,
			Vector:   m.Vector.Values,
			Metadata: metadata,
			Score:    m.Score,
		})
	}
	return out
}

var _ Provider = (*PineconeProvider)(nil)
