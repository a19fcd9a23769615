// Package precedent implements the hybrid vector+lexical cache that lets
// the orchestrator bypass path planning entirely when a past objective
// closely matches the current one.
package precedent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pr0ta9/genesis/internal/embedder"
	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/planner"
	"github.com/pr0ta9/genesis/internal/telemetry"
	"github.com/pr0ta9/genesis/internal/vector"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// Record is a stored (objective, path) pair retrieved by semantic
// similarity. It is write-once aside from explicit deletion.
type Record struct {
	UUID       string
	Objective  string
	InputType  wftype.Type
	OutputType wftype.Type
	Path       planner.PathCandidate
	ChatID     string
	CreatedAt  time.Time
}

// Match pairs a stored record with the score it achieved against a query.
type Match struct {
	Record Record
	Score  float64
}

// HitMiss distinguishes a genuine cache miss (a best match scored below
// threshold) from "store empty" (no candidates at all), so callers and
// metrics don't conflate the two.
type HitMiss struct {
	Hit        bool
	StoreEmpty bool
	Best       *Match
}

const collectionName = "genesis_precedents"

// Config configures the cache's hybrid scoring.
type Config struct {
	// Threshold is the minimum combined score required to bypass
	// path-finding. Default 0.75.
	Threshold float64
	// VectorWeight and LexicalWeight combine to form the hybrid score;
	// they need not sum to 1 but doing so keeps scores on a 0-1 scale.
	// Defaults: 0.7 vector, 0.3 lexical.
	VectorWeight  float64
	LexicalWeight float64
	// TopK bounds how many vector candidates are pulled before lexical
	// re-scoring. Default 10.
	TopK int
}

func (c Config) withDefaults() Config {
	if c.Threshold == 0 {
		c.Threshold = 0.75
	}
	if c.VectorWeight == 0 && c.LexicalWeight == 0 {
		c.VectorWeight, c.LexicalWeight = 0.7, 0.3
	}
	if c.TopK == 0 {
		c.TopK = 10
	}
	return c
}

// Store is the precedent cache: a write-serialized vector-backed index
// over past objectives, scoped by input_type, with concurrent reads.
type Store struct {
	provider vector.Provider
	embedder embedder.Embedder
	tools    *pathtool.ToolRegistry
	cfg      Config

	writeMu chan struct{} // 1-buffered: serializes writes, reads stay concurrent

	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

// SetMetrics attaches the Prometheus collector Lookup reports hit/miss/
// empty counts to. See executor.Executor.SetMetrics for why this is a
// setter rather than a constructor parameter.
func (s *Store) SetMetrics(m *telemetry.Metrics) { s.metrics = m }

// NewStore constructs a precedent cache backed by provider and embedder.
// tools is consulted on every lookup to silently drop records that
// reference a tool no longer registered.
func NewStore(provider vector.Provider, emb embedder.Embedder, tools *pathtool.ToolRegistry, cfg Config) *Store {
	return &Store{
		provider: provider,
		embedder: emb,
		tools:    tools,
		cfg:      cfg.withDefaults(),
		writeMu:  make(chan struct{}, 1),
		tracer:   telemetry.Tracer("genesis/precedent"),
	}
}

// Save embeds objective and persists a new precedent record. Save is the
// only mutation path besides Delete: records are otherwise immutable.
func (s *Store) Save(ctx context.Context, objective string, path planner.PathCandidate, chatID string) (*Record, error) {
	s.writeMu <- struct{}{}
	defer func() { <-s.writeMu }()

	if len(path.Edges) == 0 {
		return nil, fmt.Errorf("precedent: cannot save a record with an empty path")
	}

	vec, err := s.embedder.Embed(ctx, objective)
	if err != nil {
		return nil, fmt.Errorf("precedent: embed objective: %w", err)
	}

	rec := Record{
		UUID:       uuid.NewString(),
		Objective:  objective,
		InputType:  path.Edges[0].From,
		OutputType: path.OutputType(),
		Path:       path,
		ChatID:     chatID,
		CreatedAt:  time.Now(),
	}

	metadata := map[string]any{
		"objective":   rec.Objective,
		"input_type":  string(rec.InputType),
		"output_type": string(rec.OutputType),
		"chat_id":     rec.ChatID,
		"created_at":  rec.CreatedAt.Format(time.RFC3339),
		"path":        encodePath(rec.Path),
	}

	if err := s.provider.Upsert(ctx, collectionName, rec.UUID, vec, metadata); err != nil {
		return nil, fmt.Errorf("precedent: upsert record: %w", err)
	}

	slog.Info("precedent: saved record", "uuid", rec.UUID, "objective", rec.Objective, "input_type", rec.InputType)
	return &rec, nil
}

// Delete removes a record by UUID. The management surface that exposes
// this to operators is out of scope; the core still needs the hook.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu <- struct{}{}
	defer func() { <-s.writeMu }()

	if err := s.provider.Delete(ctx, collectionName, id); err != nil {
		return fmt.Errorf("precedent: delete %s: %w", id, err)
	}
	return nil
}

// Lookup performs hybrid search for objective among records scoped to
// inputType, returning the best match and whether it clears the
// bypass threshold.
//
// Score is monotone in textual similarity by construction: both the
// vector cosine-similarity component and the lexical overlap component
// increase as the query text more closely resembles a stored objective.
// A precedent that references a tool no longer registered is dropped
// before scoring, never surfaced as a zero-score hit.
func (s *Store) Lookup(ctx context.Context, objective string, inputType wftype.Type) (HitMiss, error) {
	ctx, span := s.tracer.Start(ctx, "precedent.lookup", trace.WithAttributes(attribute.String("input_type", string(inputType))))
	defer span.End()

	hitMiss, err := s.lookup(ctx, objective, inputType)
	if err != nil {
		return hitMiss, err
	}

	result := "miss"
	switch {
	case hitMiss.StoreEmpty:
		result = "empty"
	case hitMiss.Hit:
		result = "hit"
	}
	s.metrics.RecordPrecedentLookup(result)

	return hitMiss, nil
}

func (s *Store) lookup(ctx context.Context, objective string, inputType wftype.Type) (HitMiss, error) {
	vec, err := s.embedder.Embed(ctx, objective)
	if err != nil {
		return HitMiss{}, fmt.Errorf("precedent: embed query: %w", err)
	}

	filter := map[string]any{"input_type": string(inputType)}
	results, err := s.provider.SearchWithFilter(ctx, collectionName, vec, s.cfg.TopK, filter)
	if err != nil {
		return HitMiss{}, fmt.Errorf("precedent: search: %w", err)
	}

	if len(results) == 0 {
		return HitMiss{StoreEmpty: true}, nil
	}

	var matches []Match
	for _, r := range results {
		rec, ok := decodeRecord(r)
		if !ok {
			continue
		}
		if !s.pathStillRegistered(rec.Path) {
			slog.Warn("precedent: dropping record referencing unregistered tool", "uuid", rec.UUID)
			continue
		}

		lexScore := lexicalOverlap(objective, rec.Objective)
		combined := s.cfg.VectorWeight*float64(r.Score) + s.cfg.LexicalWeight*lexScore
		matches = append(matches, Match{Record: rec, Score: combined})
	}

	if len(matches) == 0 {
		return HitMiss{StoreEmpty: true}, nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	best := matches[0]

	return HitMiss{Hit: best.Score >= s.cfg.Threshold, Best: &best}, nil
}

func (s *Store) pathStillRegistered(p planner.PathCandidate) bool {
	if s.tools == nil {
		return true
	}
	for _, e := range p.Edges {
		if _, ok := s.tools.PathTool(e.Name); !ok {
			return false
		}
	}
	return true
}

// lexicalOverlap is a BM25-style stand-in: normalized token overlap
// between query and candidate objective, on a 0-1 scale. Real BM25 needs
// corpus-wide document frequencies the precedent store doesn't maintain;
// this captures the same monotonicity the invariant requires without it.
func lexicalOverlap(query, candidate string) float64 {
	qTokens := tokenize(query)
	cTokens := tokenize(candidate)
	if len(qTokens) == 0 || len(cTokens) == 0 {
		return 0
	}

	cSet := make(map[string]bool, len(cTokens))
	for _, t := range cTokens {
		cSet[t] = true
	}

	var overlap int
	seen := make(map[string]bool, len(qTokens))
	for _, t := range qTokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		if cSet[t] {
			overlap++
		}
	}

	return float64(overlap) / float64(len(seen))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}
