package pathtool

import (
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/pr0ta9/genesis/internal/wftype"
)

// ErrDuplicateTool is returned when a PathTool with the same name is
// registered twice.
type ErrDuplicateTool struct{ Name string }

func (e *ErrDuplicateTool) Error() string {
	return fmt.Sprintf("pathtool: tool %q already registered", e.Name)
}

// ToolRegistry holds every PathTool and AgentTool known to the running
// instance, indexed for both name lookup and type-graph adjacency.
type ToolRegistry struct {
	mu         sync.RWMutex
	pathTools  map[string]*PathTool
	agentTools map[string]*AgentTool
	bySource   map[wftype.Type][]*PathTool
}

// NewToolRegistry constructs an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		pathTools:  make(map[string]*PathTool),
		agentTools: make(map[string]*AgentTool),
		bySource:   make(map[wftype.Type][]*PathTool),
	}
}

// RegisterPathTool enforces the (input_type, output_type, name)
// uniqueness invariant — since tool names are globally unique in this
// registry, that reduces to rejecting a name collision — before adding
// the tool to both the name index and the adjacency index the planner
// walks. Distinct tools may freely share an (input_type, output_type)
// pair, which is how alternative converters for the same edge coexist.
func (r *ToolRegistry) RegisterPathTool(t *PathTool) error {
	if !t.InputType.Valid() {
		return fmt.Errorf("pathtool: %q has invalid input type %q", t.ToolName, t.InputType)
	}
	if !t.OutputType.Valid() {
		return fmt.Errorf("pathtool: %q has invalid output type %q", t.ToolName, t.OutputType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pathTools[t.ToolName]; exists {
		return &ErrDuplicateTool{Name: t.ToolName}
	}

	r.pathTools[t.ToolName] = t
	r.bySource[t.InputType] = append(r.bySource[t.InputType], t)
	return nil
}

// RegisterAgentTool adds a utility tool bound to agent LLM calls.
func (r *ToolRegistry) RegisterAgentTool(t *AgentTool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agentTools[t.ToolName]; exists {
		return &ErrDuplicateTool{Name: t.ToolName}
	}
	r.agentTools[t.ToolName] = t
	return nil
}

// PathTool looks up a path tool by name.
func (r *ToolRegistry) PathTool(name string) (*PathTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.pathTools[name]
	return t, ok
}

// AgentTool looks up an agent tool by name.
func (r *ToolRegistry) AgentTool(name string) (*AgentTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.agentTools[name]
	return t, ok
}

// EdgesFrom returns every PathTool whose InputType is from, the
// adjacency list the planner expands during path enumeration.
func (r *ToolRegistry) EdgesFrom(from wftype.Type) []*PathTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	edges := r.bySource[from]
	out := make([]*PathTool, len(edges))
	copy(out, edges)
	return out
}

// AllPathTools returns every registered path tool.
func (r *ToolRegistry) AllPathTools() []*PathTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*PathTool, 0, len(r.pathTools))
	for _, t := range r.pathTools {
		out = append(out, t)
	}
	return out
}

// Schema generates the JSON Schema object for a PathTool's parameters.
func Schema(t *PathTool) map[string]any {
	type paramDoc struct {
		Fields map[string]any
	}
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	props := make(map[string]any, len(t.Parameters))
	var required []string
	for _, p := range t.Parameters {
		props[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := reflector.Reflect(struct{}{})
	return map[string]any{
		"$schema":    schema.Version,
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
