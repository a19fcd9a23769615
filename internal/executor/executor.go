// Package executor runs a chosen path's tools one step at a time,
// binding each tool's arguments from the conversation's accumulated
// context, invoking handlers under a timeout and a per-step workspace,
// and retrying transient failures. Adapted from the teacher's
// workflow.ExecutionContext (shared state, results map, error
// accumulation) to the five-step binding order and per-step isolation
// a single chosen path requires.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/pr0ta9/genesis/internal/eventbus"
	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/telemetry"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// Config controls timeouts and retry behavior; values below mirror the
// spec's stated defaults.
type Config struct {
	StepTimeout     time.Duration `yaml:"step_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	WorkspaceRoot   string        `yaml:"workspace_root"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	WorkerPoolSize  int           `yaml:"worker_pool_size"`
}

func (c *Config) SetDefaults() {
	if c.StepTimeout == 0 {
		c.StepTimeout = 120 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = os.TempDir()
	}
	if c.RateLimitPerSec == 0 {
		c.RateLimitPerSec = 4
	}
	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = 8
	}
}

// BoundValue is an argument value resolved for a tool parameter, along
// with which resolution source supplied it — kept for the executed
// step's record and for test assertions about the binding chain.
type BoundValue struct {
	Value  any
	Source string // "explicit", "prior_step", "attachment", "llm_binder", "default"
}

// Artifact is one typed value available for binding: either a prior
// step's output or a user-supplied attachment.
type Artifact struct {
	Path string
	Type wftype.Type
}

// Binder proposes a value for a still-unbound parameter from
// conversation context; the only non-deterministic step in the binding
// chain, so it is injected rather than hardwired to a specific LLM
// provider.
type Binder interface {
	Propose(ctx context.Context, objective string, param pathtool.Parameter, message string) (any, bool, error)
}

// NoBinder always declines, useful when no LLM binder is configured and
// the chain should fall straight through to defaults/clarification.
type NoBinder struct{}

func (NoBinder) Propose(context.Context, string, pathtool.Parameter, string) (any, bool, error) {
	return nil, false, nil
}

// StepResult is one executed tool step's outcome.
type StepResult struct {
	Tool       string
	BoundArgs  map[string]BoundValue
	Status     string // "ok"; a failed step returns an error instead of a StepResult
	OutputPath string
	OutputType wftype.Type
	StderrTail string
	Duration   time.Duration
}

// PartialBinding is returned when a required parameter cannot be
// resolved by any step of the binding chain, signaling the caller to
// transition the conversation to waiting_for_feedback.
type PartialBinding struct {
	Tool           string
	MissingParams  []string
}

func (e *PartialBinding) Error() string {
	return fmt.Sprintf("executor: tool %q missing required parameters: %v", e.Tool, e.MissingParams)
}

// StepFailure is returned when a tool handler fails after exhausting
// retries for transient errors, or immediately for a non-transient one.
type StepFailure struct {
	Tool       string
	StderrTail string
	Err        error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("executor: tool %q failed: %v", e.Tool, e.Err)
}
func (e *StepFailure) Unwrap() error { return e.Err }

// ErrCancelled is returned by RunStep when ctx is cancelled before a
// handler attempt starts or while waiting out a retry backoff.
var ErrCancelled = errors.New("executor: cancelled")

// Transient marks an error as retryable. Handlers that want a specific
// failure retried should wrap it: fmt.Errorf("...: %w", executor.Transient(err)).
type transientError struct{ err error }

func Transient(err error) error { return &transientError{err} }
func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

func isTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Step describes one path edge ready to execute: the tool plus the
// bindable parameter sources available before this step runs.
type Step struct {
	Tool  *pathtool.PathTool
	Index int
}

// Executor runs a chosen path one step at a time through RunStep. In a
// RunStep call, conversationID/messageID scope the workspace directory
// and rate limiter; explicitArgs holds values already supplied by the
// user's message or a clarification reply, keyed by parameter name;
// attachments are typed artifacts available for binding. The bus given
// to New, if non-nil, receives custom progress events.
type Executor struct {
	cfg      Config
	binder   Binder
	bus      *eventbus.Bus
	limiters sync.Map      // conversationID -> *rate.Limiter
	mu       sync.Map      // conversationID -> *sync.Mutex, enforces at-most-one handler per conversation
	pool     chan struct{} // bounds concurrent handler invocations (in-process or go-plugin-backed) across all conversations

	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

func New(cfg Config, binder Binder, bus *eventbus.Bus) *Executor {
	cfg.SetDefaults()
	if binder == nil {
		binder = NoBinder{}
	}
	return &Executor{
		cfg:    cfg,
		binder: binder,
		bus:    bus,
		pool:   make(chan struct{}, cfg.WorkerPoolSize),
		tracer: telemetry.Tracer("genesis/executor"),
	}
}

// SetMetrics attaches the Prometheus collector RunStep reports tool
// invocation counts and durations to. Left unset, RunStep still traces
// every step through the default global tracer provider (a no-op unless
// telemetry.InitTracer installed a real one); metrics, unlike tracing,
// have no usable zero value, so they're opt-in via this setter instead
// of a constructor parameter every caller would otherwise have to thread.
func (ex *Executor) SetMetrics(m *telemetry.Metrics) { ex.metrics = m }

func (ex *Executor) limiterFor(conversationID string) *rate.Limiter {
	v, _ := ex.limiters.LoadOrStore(conversationID, rate.NewLimiter(rate.Limit(ex.cfg.RateLimitPerSec), 1))
	return v.(*rate.Limiter)
}

func (ex *Executor) lockFor(conversationID string) *sync.Mutex {
	v, _ := ex.mu.LoadOrStore(conversationID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// RunStep executes one step of the chosen path: binds its arguments,
// invokes the handler under a timeout and workspace directory, and
// returns the recorded result or a *PartialBinding / *StepFailure.
//
// At-most-one concurrent handler per conversation is enforced by
// serializing on a per-conversationID mutex; callers may invoke RunStep
// for different conversations concurrently without coordination.
func (ex *Executor) RunStep(
	ctx context.Context,
	conversationID, messageID string,
	step Step,
	objective, message string,
	explicitArgs map[string]any,
	priorOutputs []Artifact,
	attachments []Artifact,
) (StepResult, error) {
	ctx, span := ex.tracer.Start(ctx, "executor.run_step",
		trace.WithAttributes(attribute.String("tool_name", step.Tool.ToolName), attribute.Int("step_index", step.Index)))
	defer span.End()
	start := time.Now()

	result, err := ex.runStep(ctx, conversationID, messageID, step, objective, message, explicitArgs, priorOutputs, attachments)

	status := "ok"
	switch {
	case errors.As(err, new(*PartialBinding)):
		status = "partial_binding"
	case err != nil:
		status = "failed"
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	ex.metrics.RecordToolCall(step.Tool.ToolName, status, time.Since(start))

	return result, err
}

func (ex *Executor) runStep(
	ctx context.Context,
	conversationID, messageID string,
	step Step,
	objective, message string,
	explicitArgs map[string]any,
	priorOutputs []Artifact,
	attachments []Artifact,
) (StepResult, error) {
	lock := ex.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	if err := ex.limiterFor(conversationID).Wait(ctx); err != nil {
		return StepResult{}, fmt.Errorf("executor: rate limit wait: %w", err)
	}

	bound, partial := ex.bindArguments(ctx, step.Tool, objective, message, explicitArgs, priorOutputs, attachments)
	if len(partial) > 0 {
		return StepResult{}, &PartialBinding{Tool: step.Tool.ToolName, MissingParams: partial}
	}

	workDir := filepath.Join(ex.cfg.WorkspaceRoot, conversationID, messageID, fmt.Sprintf("%d_%s", step.Index, step.Tool.ToolName))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return StepResult{}, fmt.Errorf("executor: create workspace: %w", err)
	}

	inputBytes, inputType, err := resolvePrimaryInput(step.Tool, priorOutputs, attachments)
	if err != nil {
		return StepResult{}, err
	}
	_ = inputType

	argsForHandler := make(map[string]any, len(bound))
	for k, v := range bound {
		argsForHandler[k] = v.Value
	}

	ex.emitCustom(ctx, conversationID, map[string]any{"tool_name": step.Tool.ToolName, "step_index": step.Index, "status": "start"})

	result, err := ex.invokeWithRetry(ctx, step, inputBytes, argsForHandler, workDir)

	status := "ok"
	if err != nil {
		ex.emitCustom(ctx, conversationID, map[string]any{"tool_name": step.Tool.ToolName, "step_index": step.Index, "status": "error"})
		return StepResult{}, err
	}

	outputPath := filepath.Join(workDir, "output")
	if err := os.WriteFile(outputPath, result, 0o644); err != nil {
		return StepResult{}, fmt.Errorf("executor: write step output: %w", err)
	}

	ex.emitCustom(ctx, conversationID, map[string]any{"tool_name": step.Tool.ToolName, "step_index": step.Index, "status": "end"})

	return StepResult{
		Tool:       step.Tool.ToolName,
		BoundArgs:  bound,
		Status:     status,
		OutputPath: outputPath,
		OutputType: step.Tool.OutputType,
	}, nil
}

func (ex *Executor) emitCustom(ctx context.Context, conversationID string, data map[string]any) {
	if ex.bus == nil || ctx.Err() != nil {
		return
	}
	ex.bus.Publish(eventbus.Event{Type: eventbus.TypeCustom, Data: data, Timestamp: time.Now()})
}

// bindArguments implements the five-step resolution order: explicit,
// prior step output, attachment, LLM binder, default. Parameters that
// remain unbound and required are returned by name in missing.
func (ex *Executor) bindArguments(
	ctx context.Context,
	tool *pathtool.PathTool,
	objective, message string,
	explicitArgs map[string]any,
	priorOutputs []Artifact,
	attachments []Artifact,
) (bound map[string]BoundValue, missing []string) {
	bound = make(map[string]BoundValue, len(tool.Parameters))

	for _, p := range tool.Parameters {
		if v, ok := explicitArgs[p.Name]; ok {
			bound[p.Name] = BoundValue{Value: v, Source: "explicit"}
			continue
		}

		if v, ok := firstCompatible(priorOutputs, p.Type); ok {
			bound[p.Name] = BoundValue{Value: v, Source: "prior_step"}
			continue
		}

		if v, ok := firstCompatible(attachments, p.Type); ok {
			bound[p.Name] = BoundValue{Value: v, Source: "attachment"}
			continue
		}

		if v, ok, err := ex.binder.Propose(ctx, objective, p, message); err == nil && ok {
			bound[p.Name] = BoundValue{Value: v, Source: "llm_binder"}
			continue
		}

		if p.Default != nil {
			bound[p.Name] = BoundValue{Value: p.Default, Source: "default"}
			continue
		}

		if p.Required {
			missing = append(missing, p.Name)
		}
	}
	return bound, missing
}

// firstCompatible returns the path of the first artifact whose Type
// matches a parameter's declared type string. Parameter.Type values
// that don't name a wftype.Type (e.g. "string", "number") never match
// an artifact and fall through to later binding steps, which is
// intentional: only file-shaped parameters bind from prior
// outputs/attachments.
func firstCompatible(artifacts []Artifact, paramType string) (string, bool) {
	want := wftype.Type(paramType)
	if !want.Valid() {
		return "", false
	}
	for _, a := range artifacts {
		if a.Type == want {
			return a.Path, true
		}
	}
	return "", false
}

func resolvePrimaryInput(tool *pathtool.PathTool, priorOutputs []Artifact, attachments []Artifact) ([]byte, wftype.Type, error) {
	if len(priorOutputs) > 0 {
		last := priorOutputs[len(priorOutputs)-1]
		b, err := os.ReadFile(last.Path)
		if err != nil {
			return nil, "", fmt.Errorf("executor: read prior output: %w", err)
		}
		return b, last.Type, nil
	}
	for _, a := range attachments {
		if a.Type == tool.InputType {
			b, err := os.ReadFile(a.Path)
			if err != nil {
				return nil, "", fmt.Errorf("executor: read attachment: %w", err)
			}
			return b, a.Type, nil
		}
	}
	return nil, "", fmt.Errorf("executor: no input available of type %s for tool %q", tool.InputType, tool.ToolName)
}

// invokeWithRetry calls the handler under a wall-clock timeout and
// retries transient failures up to cfg.MaxRetries times with
// exponential backoff.
func (ex *Executor) invokeWithRetry(ctx context.Context, step Step, input []byte, args map[string]any, workDir string) ([]byte, error) {
	var lastErr error
	var stderrTail bytes.Buffer

	for attempt := 0; attempt <= ex.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ErrCancelled
		default:
		}

		stepCtx, cancel := context.WithTimeout(ctx, ex.cfg.StepTimeout)
		out, err := ex.callBounded(stepCtx, step.Tool, input, args)
		cancel()

		if err == nil {
			return out, nil
		}

		lastErr = err
		stderrTail.Reset()
		stderrTail.WriteString(err.Error())

		if stepCtx.Err() != nil {
			lastErr = fmt.Errorf("timeout after %s: %w", ex.cfg.StepTimeout, err)
		}

		if !isTransient(err) && stepCtx.Err() == nil {
			break
		}

		if attempt < ex.cfg.MaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 250 * time.Millisecond
			slog.Warn("executor: retrying after transient failure", "tool", step.Tool.ToolName, "attempt", attempt+1, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrCancelled
			}
		}
	}

	return nil, &StepFailure{Tool: step.Tool.ToolName, StderrTail: stderrTail.String(), Err: lastErr}
}

// callBounded runs the handler under the executor's worker pool, capping
// how many handler goroutines run concurrently process-wide. A
// go-plugin-backed handler blocks here the same as an in-process one; the
// pool slot is held for the duration of the out-of-process round trip too,
// since the bound is on concurrent invocations, not on CPU usage directly.
func (ex *Executor) callBounded(ctx context.Context, tool *pathtool.PathTool, input []byte, args map[string]any) ([]byte, error) {
	select {
	case ex.pool <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-ex.pool }()

	return tool.Call(ctx, input, args)
}
