package precedent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/planner"
	"github.com/pr0ta9/genesis/internal/vector"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// bagOfWordsEmbedder produces a deterministic vector from token presence
// against a fixed small vocabulary, just enough for cosine similarity to
// separate "translate the caption" from "denoise the audio" in tests
// without calling a real embedding API.
type bagOfWordsEmbedder struct {
	vocab []string
}

func newBagOfWordsEmbedder(vocab ...string) *bagOfWordsEmbedder {
	return &bagOfWordsEmbedder{vocab: vocab}
}

func (e *bagOfWordsEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(e.vocab))
	for i, word := range e.vocab {
		if strings.Contains(lower, word) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (e *bagOfWordsEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *bagOfWordsEmbedder) Dimension() int { return len(e.vocab) }
func (e *bagOfWordsEmbedder) Model() string  { return "bag-of-words-test" }

func newTestStore(t *testing.T, tools *pathtool.ToolRegistry, cfg Config) (*Store, func()) {
	t.Helper()
	provider, err := vector.NewProvider(&vector.ProviderConfig{Type: vector.ProviderChromem})
	require.NoError(t, err)
	emb := newBagOfWordsEmbedder("translate", "japanese", "caption", "denoise", "audio", "clip")
	store := NewStore(provider, emb, tools, cfg)
	return store, func() { provider.Close() }
}

func samplePath(name string, from, to wftype.Type) planner.PathCandidate {
	return planner.PathCandidate{Edges: []pathtool.Edge{{Name: name, From: from, To: to, Preferred: 1}}}
}

func TestSaveThenLookupIsAHit(t *testing.T) {
	tools := pathtool.NewToolRegistry()
	require.NoError(t, tools.RegisterPathTool(&pathtool.PathTool{ToolName: "translate_caption", InputType: wftype.Image, OutputType: wftype.Image}))

	store, cleanup := newTestStore(t, tools, Config{})
	defer cleanup()
	ctx := context.Background()

	path := samplePath("translate_caption", wftype.Image, wftype.Image)
	_, err := store.Save(ctx, "translate the japanese caption in this image", path, "chat-1")
	require.NoError(t, err)

	result, err := store.Lookup(ctx, "translate the japanese caption in this picture", wftype.Image)
	require.NoError(t, err)
	require.False(t, result.StoreEmpty, "expected a result, got store empty")
	require.True(t, result.Hit, "expected a hit, got score %.2f below threshold", result.Best.Score)
	require.Equal(t, "translate_caption", result.Best.Record.Path.Edges[0].Name)
}

func TestLookupMissesOnDissimilarObjective(t *testing.T) {
	tools := pathtool.NewToolRegistry()
	require.NoError(t, tools.RegisterPathTool(&pathtool.PathTool{ToolName: "denoise_audio", InputType: wftype.Audio, OutputType: wftype.Audio}))

	store, cleanup := newTestStore(t, tools, Config{})
	defer cleanup()
	ctx := context.Background()

	path := samplePath("denoise_audio", wftype.Audio, wftype.Audio)
	_, err := store.Save(ctx, "denoise this audio clip", path, "chat-1")
	require.NoError(t, err)

	result, err := store.Lookup(ctx, "translate the japanese caption", wftype.Audio)
	require.NoError(t, err)
	require.False(t, result.Hit, "expected a miss")
}

func TestLookupOnEmptyStoreReportsStoreEmpty(t *testing.T) {
	tools := pathtool.NewToolRegistry()
	store, cleanup := newTestStore(t, tools, Config{})
	defer cleanup()

	result, err := store.Lookup(context.Background(), "anything", wftype.Text)
	require.NoError(t, err)
	require.True(t, result.StoreEmpty)
	require.False(t, result.Hit)
}

func TestLookupDropsRecordsReferencingUnregisteredTools(t *testing.T) {
	tools := pathtool.NewToolRegistry()
	require.NoError(t, tools.RegisterPathTool(&pathtool.PathTool{ToolName: "translate_caption", InputType: wftype.Image, OutputType: wftype.Image}))

	store, cleanup := newTestStore(t, tools, Config{})
	defer cleanup()
	ctx := context.Background()

	path := samplePath("translate_caption", wftype.Image, wftype.Image)
	_, err := store.Save(ctx, "translate the japanese caption", path, "chat-1")
	require.NoError(t, err)

	// Simulate the tool being removed from the running registry after the
	// precedent was recorded.
	store.tools = pathtool.NewToolRegistry()

	result, err := store.Lookup(ctx, "translate the japanese caption", wftype.Image)
	require.NoError(t, err)
	require.False(t, result.Hit)
	require.True(t, result.StoreEmpty, "record referencing an unregistered tool should be dropped")
}

func TestDeleteRemovesRecordFromFutureLookups(t *testing.T) {
	tools := pathtool.NewToolRegistry()
	require.NoError(t, tools.RegisterPathTool(&pathtool.PathTool{ToolName: "translate_caption", InputType: wftype.Image, OutputType: wftype.Image}))

	store, cleanup := newTestStore(t, tools, Config{})
	defer cleanup()
	ctx := context.Background()

	path := samplePath("translate_caption", wftype.Image, wftype.Image)
	rec, err := store.Save(ctx, "translate the japanese caption", path, "chat-1")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, rec.UUID))

	result, err := store.Lookup(ctx, "translate the japanese caption", wftype.Image)
	require.NoError(t, err)
	require.False(t, result.Hit)
	require.True(t, result.StoreEmpty)
}
