package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemProvider implements Provider on top of chromem-go, an
// embedded, pure-Go vector store. It is the zero-config default: no
// external service, optional on-disk persistence.
type ChromemProvider struct {
	db          *chromem.DB
	persistPath string
	compress    bool

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// ChromemConfig configures the chromem-go backing store.
type ChromemConfig struct {
	PersistPath string `yaml:"persist_path,omitempty"`
	Compress    bool   `yaml:"compress,omitempty"`
}

// NewChromemProvider opens (or creates) a chromem-go database.
func NewChromemProvider(cfg ChromemConfig) (*ChromemProvider, error) {
	var db *chromem.DB

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("vector: create persist directory: %w", err)
		}
		dbPath := cfg.PersistPath + "/vectors.gob"
		if cfg.Compress {
			dbPath += ".gz"
		}
		if _, err := os.Stat(dbPath); err == nil {
			loaded, loadErr := chromem.NewPersistentDB(dbPath, cfg.Compress)
			if loadErr != nil {
				slog.Warn("vector: failed to load persisted database, starting fresh", "path", dbPath, "error", loadErr)
				db = chromem.NewDB()
			} else {
				db = loaded
			}
		}
	}
	if db == nil {
		db = chromem.NewDB()
	}

	return &ChromemProvider{
		db:          db,
		persistPath: cfg.PersistPath,
		compress:    cfg.Compress,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (p *ChromemProvider) getCollection(_ context.Context, name string) (*chromem.Collection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if col, ok := p.collections[name]; ok {
		return col, nil
	}

	// The embedding function is a no-op identity: Genesis always passes
	// precomputed vectors in (via internal/embedder), chromem is asked
	// only to index and search them.
	col, err := p.db.GetOrCreateCollection(name, nil, func(_ context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("vector: chromem collection %q has no embedding function; pass precomputed vectors", name)
	})
	if err != nil {
		return nil, fmt.Errorf("vector: get or create collection %q: %w", name, err)
	}
	p.collections[name] = col
	return col, nil
}

func (p *ChromemProvider) Upsert(ctx context.Context, collection, id string, embedding []float32, metadata map[string]any) error {
	col, err := p.getCollection(ctx, collection)
	if err != nil {
		return err
	}

	strMeta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		strMeta[k] = fmt.Sprint(v)
	}
	content, _ := metadata["content"].(string)

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  strMeta,
		Embedding: embedding,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("vector: upsert into %q: %w", collection, err)
	}
	return p.persist()
}

func (p *ChromemProvider) Search(ctx context.Context, collection string, embedding []float32, topK int) ([]Result, error) {
	return p.SearchWithFilter(ctx, collection, embedding, topK, nil)
}

func (p *ChromemProvider) SearchWithFilter(ctx context.Context, collection string, embedding []float32, topK int, filter map[string]any) ([]Result, error) {
	col, err := p.getCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	var where map[string]string
	if len(filter) > 0 {
		where = make(map[string]string, len(filter))
		for k, v := range filter {
			where[k] = fmt.Sprint(v)
		}
	}

	// chromem-go rejects nResults greater than the collection size; the
	// other two backends return fewer rows instead of erroring, so clamp
	// here to give Provider a single, backend-independent contract.
	if n := col.Count(); topK > n {
		topK = n
	}
	if topK == 0 {
		return nil, nil
	}

	docs, err := col.QueryEmbedding(ctx, embedding, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: search %q: %w", collection, err)
	}

	out := make([]Result, 0, len(docs))
	for _, d := range docs {
		meta := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = v
		}
		out = append(out, Result{ID: d.ID, Score: d.Similarity, Content: d.Content, Metadata: meta})
	}
	return out, nil
}

func (p *ChromemProvider) Delete(ctx context.Context, collection, id string) error {
	col, err := p.getCollection(ctx, collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("vector: delete %q from %q: %w", id, collection, err)
	}
	return p.persist()
}

func (p *ChromemProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	col, err := p.getCollection(ctx, collection)
	if err != nil {
		return err
	}
	where := make(map[string]string, len(filter))
	for k, v := range filter {
		where[k] = fmt.Sprint(v)
	}
	if err := col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("vector: delete by filter from %q: %w", collection, err)
	}
	return p.persist()
}

// CreateCollection is a no-op beyond ensuring the collection exists:
// chromem-go creates collections lazily.
func (p *ChromemProvider) CreateCollection(ctx context.Context, collection string, _ int) error {
	_, err := p.getCollection(ctx, collection)
	return err
}

func (p *ChromemProvider) DeleteCollection(_ context.Context, collection string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("vector: delete collection %q: %w", collection, err)
	}
	delete(p.collections, collection)
	return p.persist()
}

func (p *ChromemProvider) Name() string { return "chromem" }

func (p *ChromemProvider) Close() error { return p.persist() }

func (p *ChromemProvider) persist() error {
	if p.persistPath == "" {
		return nil
	}
	dbPath := p.persistPath + "/vectors.gob"
	if p.compress {
		dbPath += ".gz"
	}
	if err := p.db.Export(dbPath, p.compress, ""); err != nil {
		return fmt.Errorf("vector: persist database: %w", err)
	}
	return nil
}

var _ Provider = (*ChromemProvider)(nil)
