// Package orchestrator wires conversation.State, the five agents,
// checkpoint, eventbus, and executor together into the
// start…complete/error state machine described by the core spec,
// grounded on the teacher's Task state machine (pkg/task/task.go) and
// the langgraphgo node/edge idiom for how a step function advances a
// typed state and reports its next node.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pr0ta9/genesis/internal/agent"
	"github.com/pr0ta9/genesis/internal/checkpoint"
	"github.com/pr0ta9/genesis/internal/conversation"
	"github.com/pr0ta9/genesis/internal/eventbus"
	"github.com/pr0ta9/genesis/internal/executor"
	"github.com/pr0ta9/genesis/internal/llm"
	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/planner"
	"github.com/pr0ta9/genesis/internal/precedent"
	"github.com/pr0ta9/genesis/internal/telemetry"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// MaxIterationsPerNode bounds how many times a single message version
// may revisit the same node before the orchestrator gives up and
// surfaces an InvariantViolation, preventing a runaway
// classify<->route revision loop.
const MaxIterationsPerNode = 3

// InvariantViolation is returned when a node's iteration budget is
// exceeded for a single message version.
type InvariantViolation struct {
	ConversationID string
	MessageID      string
	Node           conversation.Node
	Limit          int
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("orchestrator: %s/%s exceeded iteration budget (%d) at node %s", e.ConversationID, e.MessageID, e.Limit, e.Node)
}

// Deps bundles every collaborator the orchestrator drives.
type Deps struct {
	Tools      *pathtool.ToolRegistry
	Precedent  *precedent.Store
	Provider   llm.Provider
	Checkpoint *checkpoint.Manager
	Hooks      *checkpoint.Hooks
	Events     *eventbus.Bus
	Executor   *executor.Executor
	PlanOpts   planner.Options
}

// Orchestrator drives one conversation's state machine from start to
// complete/error/waiting_for_feedback.
type Orchestrator struct {
	deps    Deps
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps, tracer: telemetry.Tracer("genesis/orchestrator")}
}

// SetMetrics attaches the Prometheus collector findPath reports
// path-planning duration to. See executor.Executor.SetMetrics for why
// this is a setter rather than a constructor parameter.
func (o *Orchestrator) SetMetrics(m *telemetry.Metrics) { o.metrics = m }

// Input is the user-facing turn the orchestrator processes: a message
// plus zero or more attachments, already saved to disk.
type Input struct {
	Message     string
	Attachments []conversation.Attachment
}

// Run drives state from its current Node through NodeComplete,
// NodeWaitingForFeedback, or NodeError, checkpointing and emitting
// events at every transition.
func (o *Orchestrator) Run(ctx context.Context, state *conversation.State, input Input) (*conversation.State, error) {
	for {
		if state.IsComplete {
			return state, nil
		}

		node := state.NextNode
		if state.IterationCount(node) >= MaxIterationsPerNode {
			violation := &InvariantViolation{state.ConversationID, state.MessageID, node, MaxIterationsPerNode}
			state.ErrorDetails = violation.Error()
			_ = state.Complete(conversation.NodeError)
			o.checkpointAndEmit(ctx, state)
			return state, violation
		}

		if err := state.Transition(node); err != nil {
			return state, err
		}

		next, err := o.step(ctx, state, input, node)
		if err != nil {
			state.ErrorDetails = err.Error()
			_ = state.Complete(conversation.NodeError)
			o.checkpointAndEmit(ctx, state)
			if o.deps.Hooks != nil {
				o.deps.Hooks.OnError(ctx, state)
			}
			return state, err
		}

		state.SetNextNode(next)
		o.checkpointAndEmit(ctx, state)

		if next == conversation.NodeWaitingForFeedback {
			if err := state.Transition(next); err != nil {
				return state, err
			}
			o.checkpointAndEmit(ctx, state)
			return state, nil
		}

		if next == conversation.NodeError {
			if err := state.Complete(next); err != nil {
				return state, err
			}
			o.checkpointAndEmit(ctx, state)
			if o.deps.Hooks != nil {
				o.deps.Hooks.OnError(ctx, state)
			}
			return state, nil
		}

		if next == conversation.NodeComplete {
			if err := state.Complete(next); err != nil {
				return state, err
			}
			o.checkpointAndEmit(ctx, state)
			if o.deps.Hooks != nil {
				o.deps.Hooks.OnComplete(ctx, state)
			}
			return state, nil
		}
	}
}

func (o *Orchestrator) checkpointAndEmit(ctx context.Context, state *conversation.State) {
	if o.deps.Hooks != nil {
		o.deps.Hooks.AfterTransition(ctx, state)
	}
	if o.deps.Events != nil {
		o.deps.Events.PublishUpdate(ctx, map[string]any{
			"node":      state.Node,
			"next_node": state.NextNode,
			"version":   state.Version,
		})
	}
}

// step executes the body of one node and returns the node to transition
// to next.
func (o *Orchestrator) step(ctx context.Context, state *conversation.State, input Input, node conversation.Node) (conversation.Node, error) {
	switch node {
	case conversation.NodeClassify:
		return o.classify(ctx, state, input)
	case conversation.NodePrecedent:
		return o.lookupPrecedent(ctx, state)
	case conversation.NodeFindPath:
		return o.findPath(ctx, state)
	case conversation.NodeRoute:
		return o.route(ctx, state, input)
	case conversation.NodeExecute:
		return o.execute(ctx, state, input)
	case conversation.NodeFinalize:
		return o.finalize(ctx, state)
	default:
		return "", fmt.Errorf("orchestrator: no step defined for node %s", node)
	}
}

func (o *Orchestrator) classify(ctx context.Context, state *conversation.State, input Input) (conversation.Node, error) {
	ctx, span := o.tracer.Start(ctx, "agent.classify")
	defer span.End()

	atts := make([]agent.Attachment, 0, len(input.Attachments))
	for _, a := range input.Attachments {
		atts = append(atts, agent.Attachment{Filename: a.Path, MIMEType: a.MIMEType})
	}

	result, reasoning, err := agent.Classify(ctx, o.deps.Provider, input.Message, atts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("orchestrator: classify: %w", err)
	}

	state.Objective = result.Objective
	state.InputType = wftype.Type(result.InputType)
	state.IsComplex = result.IsComplex
	state.ClassifyReasoning = reasoning
	state.ClassifyClarification = result.Clarification
	state.SatisfyingOutputTypes = result.SatisfyingOutputTypes
	state.TypeSavepoint = append(state.TypeSavepoint, state.InputType)

	if result.Clarification != "" {
		return conversation.NodeWaitingForFeedback, nil
	}
	if !result.IsComplex {
		state.Response = result.Objective
		return conversation.NodeFinalize, nil
	}
	return conversation.NodePrecedent, nil
}

func (o *Orchestrator) lookupPrecedent(ctx context.Context, state *conversation.State) (conversation.Node, error) {
	if o.deps.Precedent == nil {
		return conversation.NodeFindPath, nil
	}

	hitMiss, err := agent.Lookup(ctx, o.deps.Precedent, state.Objective, state.InputType)
	if err != nil {
		slog.Warn("orchestrator: precedent lookup failed, falling back to path-finding", "error", err)
		return conversation.NodeFindPath, nil
	}

	if hitMiss.Hit && hitMiss.Best != nil {
		path := hitMiss.Best.Record.Path
		state.AllPaths = []planner.PathCandidate{path}
		return conversation.NodeRoute, nil
	}
	return conversation.NodeFindPath, nil
}

func (o *Orchestrator) findPath(ctx context.Context, state *conversation.State) (conversation.Node, error) {
	_, span := o.tracer.Start(ctx, "planner.find_paths", trace.WithAttributes(attribute.String("input_type", string(state.InputType))))
	defer span.End()
	start := time.Now()

	result, err := agent.FindPaths(o.deps.Tools, state.InputType, state.SatisfyingOutputTypes, o.deps.PlanOpts)

	if err != nil {
		var npf *planner.NoPathFound
		if ok := asNoPathFound(err, &npf); ok {
			o.metrics.RecordPathPlanning(string(state.InputType), time.Since(start), 0)
			state.ErrorDetails = npf.Error()
			return conversation.NodeError, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("orchestrator: find_path: %w", err)
	}
	o.metrics.RecordPathPlanning(string(state.InputType), time.Since(start), len(result.AllPaths))
	state.AllPaths = result.AllPaths
	return conversation.NodeRoute, nil
}

func asNoPathFound(err error, target **planner.NoPathFound) bool {
	npf, ok := err.(*planner.NoPathFound)
	if ok {
		*target = npf
	}
	return ok
}

func (o *Orchestrator) route(ctx context.Context, state *conversation.State, input Input) (conversation.Node, error) {
	if len(state.AllPaths) == 0 {
		state.ErrorDetails = "orchestrator: route reached with no candidate paths"
		return conversation.NodeError, nil
	}
	if len(state.AllPaths) == 1 {
		state.ChosenPath = &state.AllPaths[0]
		return conversation.NodeExecute, nil
	}

	ctx, span := o.tracer.Start(ctx, "agent.route")
	defer span.End()

	result, reasoning, err := agent.Route(ctx, o.deps.Provider, state.Objective, state.AllPaths, input.Message)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("orchestrator: route: %w", err)
	}
	state.RouteReasoning = reasoning
	state.RouteClarification = result.Clarification
	state.IsPartial = result.IsPartial

	if result.Clarification != "" {
		return conversation.NodeWaitingForFeedback, nil
	}
	if result.ChosenPathIndex < 0 || result.ChosenPathIndex >= len(state.AllPaths) {
		return "", fmt.Errorf("orchestrator: route chose out-of-range path index %d", result.ChosenPathIndex)
	}
	state.ChosenPath = &state.AllPaths[result.ChosenPathIndex]

	if o.deps.Precedent != nil {
		if _, err := o.deps.Precedent.Save(ctx, state.Objective, *state.ChosenPath, state.ConversationID); err != nil {
			slog.Warn("orchestrator: failed to save precedent", "error", err)
		}
	}
	return conversation.NodeExecute, nil
}

func (o *Orchestrator) execute(ctx context.Context, state *conversation.State, input Input) (conversation.Node, error) {
	if state.ChosenPath == nil {
		return "", fmt.Errorf("orchestrator: execute reached with no chosen path")
	}

	attachments := make([]executor.Artifact, 0, len(input.Attachments))
	for _, a := range input.Attachments {
		attachments = append(attachments, executor.Artifact{Path: a.Path, Type: state.InputType})
	}

	// Seed priorOutputs from steps already recorded, so a step resumed
	// mid-path (startIndex > 0) still sees its predecessor's output
	// instead of only the steps executed within this call.
	startIndex := len(state.ExecutionResults)
	priorOutputs := make([]executor.Artifact, 0, startIndex)
	for i, r := range state.ExecutionResults {
		priorOutputs = append(priorOutputs, executor.Artifact{Path: r.OutputPath, Type: state.TypeSavepoint[i+1]})
	}

	// A clarification reply feeding a resume into this node is the
	// explicit value for whichever parameters the prior PartialBinding
	// named, per spec §4.6(a)'s "explicit user-supplied value (from the
	// original message or a clarification reply)" ordering. It applies
	// only to the step that stalled, not to later steps in the path.
	resumeArgs := resumeExplicitArgs(state, input.Message)

	for i := startIndex; i < state.ChosenPath.Length(); i++ {
		edge := state.ChosenPath.Edges[i]
		tool, ok := o.deps.Tools.PathTool(edge.Name)
		if !ok {
			return "", fmt.Errorf("orchestrator: chosen path references unregistered tool %q", edge.Name)
		}

		var explicitArgs map[string]any
		if i == startIndex {
			explicitArgs = resumeArgs
		}

		result, err := o.deps.Executor.RunStep(ctx, state.ConversationID, state.MessageID,
			executor.Step{Tool: tool, Index: i},
			state.Objective, input.Message,
			explicitArgs, priorOutputs, attachments,
		)
		if err != nil {
			var partial *executor.PartialBinding
			if p, ok := err.(*executor.PartialBinding); ok {
				partial = p
				state.IsPartial = true
				state.PendingParams = partial.MissingParams
				state.RouteClarification = fmt.Sprintf("Missing required input for %s: %v", partial.Tool, partial.MissingParams)
				return conversation.NodeWaitingForFeedback, nil
			}
			return "", fmt.Errorf("orchestrator: execute step %d (%s): %w", i, tool.ToolName, err)
		}

		state.PendingParams = nil
		state.ExecutionResults = append(state.ExecutionResults, conversation.StepResult{
			Tool:       result.Tool,
			BoundArgs:  boundArgsToAny(result.BoundArgs),
			Status:     result.Status,
			OutputPath: result.OutputPath,
			Duration:   result.Duration,
		})
		state.TypeSavepoint = append(state.TypeSavepoint, result.OutputType)
		priorOutputs = append(priorOutputs, executor.Artifact{Path: result.OutputPath, Type: result.OutputType})
		state.ExecutionOutputPath = result.OutputPath
	}

	return conversation.NodeFinalize, nil
}

// resumeExplicitArgs binds a clarification reply to every parameter name
// a prior PartialBinding left unresolved, so the resumed step's binding
// chain resolves them as "explicit" rather than falling through to the
// LLM binder or failing again.
func resumeExplicitArgs(state *conversation.State, reply string) map[string]any {
	if !state.Interrupted || len(state.PendingParams) == 0 || reply == "" {
		return nil
	}
	args := make(map[string]any, len(state.PendingParams))
	for _, name := range state.PendingParams {
		args[name] = reply
	}
	return args
}

func boundArgsToAny(bound map[string]executor.BoundValue) map[string]any {
	out := make(map[string]any, len(bound))
	for k, v := range bound {
		out[k] = v.Value
	}
	return out
}

func (o *Orchestrator) finalize(ctx context.Context, state *conversation.State) (conversation.Node, error) {
	if !state.IsComplex {
		return conversation.NodeComplete, nil
	}

	steps := make([]agent.StepResult, 0, len(state.ExecutionResults))
	for _, r := range state.ExecutionResults {
		steps = append(steps, agent.StepResult{
			ToolName:    r.Tool,
			Success:     r.Status == "ok",
			ErrorMessage: r.StderrTail,
			OutputPaths: []string{r.OutputPath},
		})
	}

	ctx, span := o.tracer.Start(ctx, "agent.finalize")
	defer span.End()

	result, reasoning, err := agent.Finalize(ctx, o.deps.Provider, state.Objective, steps)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("orchestrator: finalize: %w", err)
	}
	state.Response = result.Response
	state.Summary = result.Summary
	state.FinalizeReasoning = reasoning
	return conversation.NodeComplete, nil
}

// Resume continues a waiting_for_feedback state with the user's
// clarification reply, folding it into the message the resumed node
// sees as explicit input. attachments carries any files resubmitted
// alongside the reply (spec's resume(conversation_id, feedback_text,
// attachments[]) signature) since a stalled first step never consumed
// the original message's attachments and they are not otherwise
// retained on state.
func (o *Orchestrator) Resume(ctx context.Context, state *conversation.State, reply string, attachments []conversation.Attachment) (*conversation.State, error) {
	resumeNode := conversation.NodeClassify
	switch {
	case state.ChosenPath != nil && len(state.ExecutionResults) < state.ChosenPath.Length():
		resumeNode = conversation.NodeExecute
	case len(state.AllPaths) > 0:
		resumeNode = conversation.NodeRoute
	}

	resumed, err := state.Resume(resumeNode)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resume: %w", err)
	}
	resumed.NextNode = resumeNode

	return o.Run(ctx, resumed, Input{Message: reply, Attachments: attachments})
}
