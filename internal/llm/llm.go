// Package llm provides the provider-agnostic structured-output client
// every agent calls: a fixed system prompt plus a JSON Schema the
// response must conform to, with reasoning tokens streamed on a
// separate logical channel from the final structured payload.
package llm

import (
	"context"
	"fmt"

	"github.com/pr0ta9/genesis/internal/registry"
)

// Message is one turn in the conversation handed to the model.
type Message struct {
	Role    string // "system", "user", "assistant", "tool"
	Content string
}

// Request bundles everything an agent call needs: the structured-output
// schema it must conform to, and an optional set of agent tool
// definitions. The OpenAI and Anthropic providers in this package do not
// send Tools to the model, so no agent tool is invoked mid-reasoning.
type Request struct {
	Messages    []Message
	Schema      map[string]any
	SchemaName  string
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
}

// ToolDefinition mirrors pathtool.AgentTool's shape, decoupled from that
// package so llm has no dependency on it.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// StreamEventType distinguishes the two logical streams a call produces.
type StreamEventType string

const (
	EventReasoningDelta StreamEventType = "reasoning_delta"
	EventResult         StreamEventType = "result"
	EventError          StreamEventType = "error"
)

// StreamEvent is one unit of a GenerateStructured stream. Exactly one
// EventResult (or EventError) terminates the stream; any number of
// EventReasoningDelta events may precede it. The core never parses
// reasoning content for state, per the ambient design notes.
type StreamEvent struct {
	Type           StreamEventType
	ReasoningDelta string
	ResultJSON     string
	TokensUsed     int
	Err            error
}

// Provider is one LLM backend capable of structured output.
type Provider interface {
	Name() string
	ModelName() string
	// GenerateStructured runs a single structured-output call, returning a
	// channel the caller drains to completion. The channel is always
	// closed after the terminal event.
	GenerateStructured(ctx context.Context, req Request) (<-chan StreamEvent, error)
	CountTokens(text string) int
}

// Registry indexes configured providers by name (e.g. "openai-gpt4o",
// "anthropic-sonnet"), built on internal/registry's BaseRegistry.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

func (r *Registry) RegisterProvider(name string, p Provider) error {
	if name == "" {
		return fmt.Errorf("llm: provider name cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("llm: provider cannot be nil")
	}
	return r.Register(name, p)
}

// collect drains a stream to its terminal result, a convenience for
// agents and tests that don't need the reasoning deltas live.
func collect(ch <-chan StreamEvent) (StreamEvent, error) {
	var last StreamEvent
	for ev := range ch {
		last = ev
		if ev.Type == EventError {
			return ev, ev.Err
		}
		if ev.Type == EventResult {
			return ev, nil
		}
	}
	return last, fmt.Errorf("llm: stream closed without a terminal event")
}

// GenerateStructuredSync is GenerateStructured followed by collect, for
// callers (most agents) that don't need to forward reasoning deltas to a
// UI themselves.
func GenerateStructuredSync(ctx context.Context, p Provider, req Request) (StreamEvent, error) {
	ch, err := p.GenerateStructured(ctx, req)
	if err != nil {
		return StreamEvent{}, err
	}
	return collect(ch)
}
