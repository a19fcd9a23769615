package precedent

import (
	"encoding/json"
	"time"

	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/planner"
	"github.com/pr0ta9/genesis/internal/vector"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// encodedEdge is the JSON-stable representation of a pathtool.Edge, since
// Edge carries unexported-behaviorally-equivalent fields we want under
// our own control rather than coupled to pathtool's internal layout.
type encodedEdge struct {
	Name      string  `json:"name"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Preferred float64 `json:"preferred"`
}

// encodePath serializes a path to a JSON string, the only metadata shape
// every vector.Provider backend (chromem, Qdrant, Pinecone) can carry
// uniformly as a scalar value.
func encodePath(p planner.PathCandidate) string {
	edges := make([]encodedEdge, len(p.Edges))
	for i, e := range p.Edges {
		edges[i] = encodedEdge{Name: e.Name, From: string(e.From), To: string(e.To), Preferred: e.Preferred}
	}
	b, err := json.Marshal(edges)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodePath(s string) (planner.PathCandidate, bool) {
	var edges []encodedEdge
	if err := json.Unmarshal([]byte(s), &edges); err != nil || len(edges) == 0 {
		return planner.PathCandidate{}, false
	}
	out := make([]pathtool.Edge, len(edges))
	for i, e := range edges {
		out[i] = pathtool.Edge{Name: e.Name, From: wftype.Type(e.From), To: wftype.Type(e.To), Preferred: e.Preferred}
	}
	return planner.PathCandidate{Edges: out}, true
}

// decodeRecord rebuilds a Record from a vector search hit's metadata,
// returning false if the metadata is missing required fields or the
// stored path can't be decoded.
func decodeRecord(r vector.Result) (Record, bool) {
	objective, _ := r.Metadata["objective"].(string)
	pathStr, _ := r.Metadata["path"].(string)
	if objective == "" || pathStr == "" {
		return Record{}, false
	}
	path, ok := decodePath(pathStr)
	if !ok {
		return Record{}, false
	}

	inputType, _ := r.Metadata["input_type"].(string)
	outputType, _ := r.Metadata["output_type"].(string)
	chatID, _ := r.Metadata["chat_id"].(string)
	createdAt := time.Time{}
	if ts, ok := r.Metadata["created_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			createdAt = parsed
		}
	}

	return Record{
		UUID:       r.ID,
		Objective:  objective,
		InputType:  wftype.Type(inputType),
		OutputType: wftype.Type(outputType),
		Path:       path,
		ChatID:     chatID,
		CreatedAt:  createdAt,
	}, true
}
