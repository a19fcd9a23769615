// Package pathtool defines the two tool shapes Genesis operates on: a
// PathTool, which is a graph edge that transforms content from one
// workflow type to another, and an AgentTool, a utility call bound to a
// single agent's LLM turn rather than to the type graph.
//
// The layering mirrors the tool hierarchy Genesis's ambient stack favors
// elsewhere: a thin Tool base, with CallableTool-style synchronous
// execution on top of it.
package pathtool

import (
	"context"
	"fmt"

	"github.com/pr0ta9/genesis/internal/wftype"
)

// Parameter describes one named input a tool's handler accepts beyond its
// primary content payload.
type Parameter struct {
	Name        string
	Description string
	Type        string // "string", "number", "boolean", "object"
	Required    bool
	Default     any
}

// Tool is the base every path tool and agent tool implements.
type Tool interface {
	Name() string
	Description() string
}

// Handler performs the actual content transformation for a PathTool. It
// receives the bound arguments (already resolved by the executor's
// binding chain) plus the raw input payload, and returns the
// transformed payload.
type Handler func(ctx context.Context, input []byte, args map[string]any) ([]byte, error)

// PathTool is a directed edge in the type graph: it consumes InputType
// and produces OutputType. The (InputType, OutputType, Name) triple must
// be unique within a ToolRegistry (the uniqueness invariant documented
// in DESIGN.md's ledger for this package).
type PathTool struct {
	ToolName    string
	Desc        string
	InputType   wftype.Type
	OutputType  wftype.Type
	Parameters  []Parameter
	Preferred   float64 // tie-break weight used by the planner's ranking
	HandlerFunc Handler
}

func (t *PathTool) Name() string        { return t.ToolName }
func (t *PathTool) Description() string { return t.Desc }

// Call invokes the handler, returning an error when HandlerFunc is nil
// (a PathTool with a nil handler is a configuration bug, not a runtime
// condition to recover from silently).
func (t *PathTool) Call(ctx context.Context, input []byte, args map[string]any) ([]byte, error) {
	if t.HandlerFunc == nil {
		return nil, fmt.Errorf("pathtool: %q has no handler registered", t.ToolName)
	}
	return t.HandlerFunc(ctx, input, args)
}

// RequiredParameters returns the subset of Parameters that must be bound
// before the tool can run.
func (t *PathTool) RequiredParameters() []Parameter {
	out := make([]Parameter, 0, len(t.Parameters))
	for _, p := range t.Parameters {
		if p.Required {
			out = append(out, p)
		}
	}
	return out
}

// AgentToolHandler performs a single utility call on behalf of an agent's
// LLM turn (web search, calculator, MCP-backed lookups). Unlike a
// PathTool it does not participate in the type graph.
type AgentToolHandler func(ctx context.Context, args map[string]any) (map[string]any, error)

// AgentTool is bound to an agent's LLM call, not to a path edge.
type AgentTool struct {
	ToolName    string
	Desc        string
	Schema      map[string]any
	HandlerFunc AgentToolHandler
}

func (t *AgentTool) Name() string        { return t.ToolName }
func (t *AgentTool) Description() string { return t.Desc }

func (t *AgentTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	if t.HandlerFunc == nil {
		return nil, fmt.Errorf("pathtool: agent tool %q has no handler registered", t.ToolName)
	}
	return t.HandlerFunc(ctx, args)
}

// Edge is the planner's view of a PathTool: just enough to walk the
// type graph without carrying the handler closure around.
type Edge struct {
	Name       string
	From       wftype.Type
	To         wftype.Type
	Preferred  float64
	Parameters []Parameter
}

// EdgeOf projects a PathTool down to its Edge.
func EdgeOf(t *PathTool) Edge {
	return Edge{
		Name:       t.ToolName,
		From:       t.InputType,
		To:         t.OutputType,
		Preferred:  t.Preferred,
		Parameters: t.Parameters,
	}
}
