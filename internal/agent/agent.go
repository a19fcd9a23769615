// Package agent implements the five functions that steer the
// orchestrator: three LLM-backed (Classifier, Router, Finalizer) that
// call out to an internal/llm.Provider with a fixed system prompt and a
// JSON Schema, and two deterministic (Path-Finder, Precedent) that wrap
// internal/planner and internal/precedent directly.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/pr0ta9/genesis/internal/llm"
	"github.com/pr0ta9/genesis/internal/planner"
	"github.com/pr0ta9/genesis/internal/precedent"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// reflectSchema generates, from a Go struct, the JSON Schema a
// structured-output call must conform to.
func reflectSchema(v any) map[string]any {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(v)
	b, _ := json.Marshal(schema)
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}

// callStructured runs one LLM-backed agent call and decodes the
// terminal result into dst (a pointer to the agent's result struct).
func callStructured(ctx context.Context, provider llm.Provider, systemPrompt, userContent string, dst any) (reasoning string, err error) {
	req := llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		Schema:     reflectSchema(dst),
		SchemaName: fmt.Sprintf("%T", dst),
	}

	ch, err := provider.GenerateStructured(ctx, req)
	if err != nil {
		return "", fmt.Errorf("agent: generate structured: %w", err)
	}

	var reasoningBuf string
	for ev := range ch {
		switch ev.Type {
		case llm.EventReasoningDelta:
			reasoningBuf += ev.ReasoningDelta
		case llm.EventError:
			return reasoningBuf, fmt.Errorf("agent: provider error: %w", ev.Err)
		case llm.EventResult:
			if err := json.Unmarshal([]byte(ev.ResultJSON), dst); err != nil {
				return reasoningBuf, fmt.Errorf("agent: decode structured result: %w", err)
			}
			return reasoningBuf, nil
		}
	}
	return reasoningBuf, fmt.Errorf("agent: provider closed stream without a result")
}

// --- Classifier ---

// Attachment is the minimal description of an uploaded artifact a
// Classifier call needs: enough to detect the input type without
// carrying the raw bytes into the prompt.
type Attachment struct {
	Filename string
	MIMEType string
}

// ClassifierResult is the Classifier's structured output (§4.4).
type ClassifierResult struct {
	Objective             string   `json:"objective" jsonschema:"required,description=The LLM-derived goal phrase for this request."`
	InputType             string   `json:"input_type" jsonschema:"required,description=Detected workflow type of the primary attachment, or NONE."`
	IsComplex             bool     `json:"is_complex" jsonschema:"required,description=False for trivial chat/greetings that skip planning entirely."`
	SatisfyingOutputTypes []string `json:"satisfying_output_types" jsonschema:"description=Workflow types that would satisfy the user's intent, inferred from it."`
	Reasoning             string   `json:"reasoning"`
	Clarification         string   `json:"clarification,omitempty" jsonschema:"description=Non-empty when the request cannot be classified without asking the user."`
}

const classifierSystemPrompt = `You are the Classifier stage of a multimodal workflow orchestrator.
Given a user's message and a description of any attached files, determine:
- the objective: a short goal phrase summarizing what the user wants done
- the input_type: the workflow type of the primary attachment (IMAGE, AUDIO, VIDEO, TEXT, PDF, TEXT_FILE, TABLE, JSON, or NONE if there is no attachment)
- is_complex: false only for trivial conversational turns (greetings, thanks, small talk) that need no tool chain
- satisfying_output_types: the workflow type(s) that would satisfy the user's intent, if you can tell
- clarification: fill this in only if you cannot proceed without asking the user something first
Respond only with the structured fields requested.`

// Classify runs the Classifier agent.
func Classify(ctx context.Context, provider llm.Provider, message string, attachments []Attachment) (ClassifierResult, string, error) {
	userContent := fmt.Sprintf("Message: %s\nAttachments: %s", message, describeAttachments(attachments))
	var result ClassifierResult
	reasoning, err := callStructured(ctx, provider, classifierSystemPrompt, userContent, &result)
	return result, reasoning, err
}

func describeAttachments(atts []Attachment) string {
	if len(atts) == 0 {
		return "(none)"
	}
	s := ""
	for i, a := range atts {
		if i > 0 {
			s += "; "
		}
		s += fmt.Sprintf("%s (%s)", a.Filename, a.MIMEType)
	}
	return s
}

// --- Path-Finder (deterministic) ---

// PathFinderResult is the Path-Finder's output: every candidate within
// the depth bound, already ranked.
type PathFinderResult struct {
	AllPaths []planner.PathCandidate
}

// FindPaths runs the deterministic Path-Finder agent: no LLM call, pure
// graph search over reg.
func FindPaths(reg planner.Registry, inputType wftype.Type, satisfyingOutputTypes []string, opts planner.Options) (PathFinderResult, error) {
	satisfying := make([]wftype.Type, 0, len(satisfyingOutputTypes))
	for _, s := range satisfyingOutputTypes {
		satisfying = append(satisfying, wftype.Type(s))
	}
	paths, err := planner.FindPaths(reg, inputType, satisfying, opts)
	if err != nil {
		return PathFinderResult{}, err
	}
	return PathFinderResult{AllPaths: paths}, nil
}

// --- Precedent (deterministic) ---

// Lookup runs the deterministic Precedent agent: no LLM call, a hybrid
// similarity search against the precedent store.
func Lookup(ctx context.Context, store *precedent.Store, objective string, inputType wftype.Type) (precedent.HitMiss, error) {
	return store.Lookup(ctx, objective, inputType)
}

// --- Router ---

// RouterResult is the Router's structured output (§4.4).
type RouterResult struct {
	ChosenPathIndex int    `json:"chosen_path_index" jsonschema:"required,description=Index into the candidate list of the chosen path."`
	IsPartial       bool   `json:"is_partial" jsonschema:"required,description=True if the chosen path's parameters cannot be fully filled from the current message."`
	Reasoning       string `json:"reasoning"`
	Clarification   string `json:"clarification,omitempty"`
}

const routerSystemPrompt = `You are the Router stage of a multimodal workflow orchestrator.
You are given the user's objective, the current message, and a numbered list of
candidate tool-chain paths (each an ordered sequence of tools with parameter schemas).
Choose the single best path by index. Set is_partial=true if the current message
does not supply enough information to fill the chosen path's required parameters.
Set clarification only if you must ask the user something before proceeding.
Respond only with the structured fields requested.`

// Route runs the Router agent over candidates, describing each
// candidate's tool chain and parameter schema in the prompt.
func Route(ctx context.Context, provider llm.Provider, objective string, candidates []planner.PathCandidate, message string) (RouterResult, string, error) {
	userContent := fmt.Sprintf("Objective: %s\nMessage: %s\nCandidates:\n%s", objective, message, describeCandidates(candidates))
	var result RouterResult
	reasoning, err := callStructured(ctx, provider, routerSystemPrompt, userContent, &result)
	return result, reasoning, err
}

func describeCandidates(candidates []planner.PathCandidate) string {
	s := ""
	for i, c := range candidates {
		s += fmt.Sprintf("%d: ", i)
		for j, e := range c.Edges {
			if j > 0 {
				s += " -> "
			}
			s += fmt.Sprintf("%s(%s->%s)", e.Name, e.From, e.To)
			if len(e.Parameters) > 0 {
				s += " [params:"
				for _, p := range e.Parameters {
					s += fmt.Sprintf(" %s (%s, required=%t): %s;", p.Name, p.Type, p.Required, p.Description)
				}
				s += "]"
			}
		}
		s += "\n"
	}
	return s
}

// --- Finalizer ---

// StepResult is one executed tool step's outcome, the input the
// Finalizer composes its reply from.
type StepResult struct {
	ToolName     string
	Success      bool
	ErrorMessage string
	OutputPaths  []string
}

// FinalizerResult is the Finalizer's structured output (§4.4).
type FinalizerResult struct {
	Response  string `json:"response" jsonschema:"required,description=The user-facing reply."`
	Summary   string `json:"summary" jsonschema:"required,description=A short internal summary of what was produced, for logging."`
	Reasoning string `json:"reasoning"`
}

const finalizerSystemPrompt = `You are the Finalizer stage of a multimodal workflow orchestrator.
You are given the user's objective and the results of every tool executed to satisfy it,
including any produced output files. Compose a concise, friendly, user-facing response
that references the produced artifacts by name. If any step failed, acknowledge it honestly.
Respond only with the structured fields requested.`

// Finalize runs the Finalizer agent.
func Finalize(ctx context.Context, provider llm.Provider, objective string, steps []StepResult) (FinalizerResult, string, error) {
	userContent := fmt.Sprintf("Objective: %s\nResults:\n%s", objective, describeSteps(steps))
	var result FinalizerResult
	reasoning, err := callStructured(ctx, provider, finalizerSystemPrompt, userContent, &result)
	return result, reasoning, err
}

func describeSteps(steps []StepResult) string {
	s := ""
	for _, st := range steps {
		status := "ok"
		if !st.Success {
			status = "failed: " + st.ErrorMessage
		}
		s += fmt.Sprintf("- %s: %s, outputs=%v\n", st.ToolName, status, st.OutputPaths)
	}
	return s
}
