package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pr0ta9/genesis/internal/agent"
	"github.com/pr0ta9/genesis/internal/checkpoint"
	"github.com/pr0ta9/genesis/internal/conversation"
	"github.com/pr0ta9/genesis/internal/eventbus"
	"github.com/pr0ta9/genesis/internal/executor"
	"github.com/pr0ta9/genesis/internal/llm"
	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/planner"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// scriptedProvider returns a queued structured-result payload per call,
// letting a test drive the Classifier/Router/Finalizer sequence through
// a single fake.
type scriptedProvider struct {
	payloads []string
	calls    int
}

func (s *scriptedProvider) Name() string       { return "scripted" }
func (s *scriptedProvider) ModelName() string  { return "scripted-model" }
func (s *scriptedProvider) CountTokens(t string) int { return len(t) }

func (s *scriptedProvider) GenerateStructured(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	if s.calls >= len(s.payloads) {
		return nil, fmt.Errorf("scriptedProvider: no more payloads queued")
	}
	payload := s.payloads[s.calls]
	s.calls++
	ch := make(chan llm.StreamEvent, 1)
	go func() {
		defer close(ch)
		ch <- llm.StreamEvent{Type: llm.EventResult, ResultJSON: payload}
	}()
	return ch, nil
}

func newDeps(t *testing.T, provider llm.Provider) (Deps, *pathtool.ToolRegistry) {
	t.Helper()
	reg := pathtool.NewToolRegistry()
	require.NoError(t, reg.RegisterPathTool(&pathtool.PathTool{
		ToolName:   "pdf_extract",
		InputType:  wftype.PDF,
		OutputType: wftype.Text,
		HandlerFunc: func(ctx context.Context, input []byte, args map[string]any) ([]byte, error) {
			return []byte("extracted text"), nil
		},
	}))

	exec := executor.New(executor.Config{WorkspaceRoot: t.TempDir()}, nil, nil)
	mgr := checkpoint.NewManager(nil, checkpoint.NewMemoryStorage())

	return Deps{
		Tools:      reg,
		Provider:   provider,
		Checkpoint: mgr,
		Hooks:      checkpoint.NewHooks(mgr),
		Events:     eventbus.New(),
		Executor:   exec,
		PlanOpts:   planner.Options{},
	}, reg
}

func classifyPayload(t *testing.T, objective string, isComplex bool, inputType wftype.Type, satisfying []string) string {
	t.Helper()
	b, err := json.Marshal(agent.ClassifierResult{
		Objective:             objective,
		InputType:             string(inputType),
		IsComplex:             isComplex,
		SatisfyingOutputTypes: satisfying,
	})
	require.NoError(t, err)
	return string(b)
}

func finalizePayload(t *testing.T, response, summary string) string {
	t.Helper()
	b, err := json.Marshal(agent.FinalizerResult{Response: response, Summary: summary})
	require.NoError(t, err)
	return string(b)
}

func TestRunTrivialMessageSkipsPlanningAndCompletes(t *testing.T) {
	provider := &scriptedProvider{payloads: []string{
		classifyPayload(t, "say hello", false, wftype.None, nil),
	}}
	deps, _ := newDeps(t, provider)
	orc := New(deps)

	state := conversation.New("conv-1", "msg-1")
	final, err := orc.Run(context.Background(), state, Input{Message: "hi there"})
	require.NoError(t, err)
	require.True(t, final.IsComplete)
	require.Equal(t, conversation.NodeComplete, final.Node)
}

func TestRunExecutesSinglePathAndFinalizes(t *testing.T) {
	provider := &scriptedProvider{payloads: []string{
		classifyPayload(t, "extract the text", true, wftype.PDF, []string{string(wftype.Text)}),
		finalizePayload(t, "Here is your extracted text.", "extracted 1 document"),
	}}
	deps, _ := newDeps(t, provider)
	orc := New(deps)

	attDir := t.TempDir()
	attPath := filepath.Join(attDir, "doc.pdf")
	require.NoError(t, os.WriteFile(attPath, []byte("%PDF-"), 0o644))

	state := conversation.New("conv-1", "msg-1")
	final, err := orc.Run(context.Background(), state, Input{
		Message:     "extract the text from this PDF",
		Attachments: []conversation.Attachment{{Path: attPath, MIMEType: "application/pdf"}},
	})
	require.NoError(t, err)
	require.True(t, final.IsComplete)
	require.Equal(t, "Here is your extracted text.", final.Response)
	require.Len(t, final.ExecutionResults, 1)
	require.Equal(t, "pdf_extract", final.ExecutionResults[0].Tool)
}

func TestRunStopsAtWaitingForFeedbackOnClassifyClarification(t *testing.T) {
	payload, err := json.Marshal(agent.ClassifierResult{
		Objective:     "",
		InputType:     string(wftype.None),
		IsComplex:     true,
		Clarification: "What would you like me to do?",
	})
	require.NoError(t, err)
	provider := &scriptedProvider{payloads: []string{string(payload)}}
	deps, _ := newDeps(t, provider)
	orc := New(deps)

	state := conversation.New("conv-1", "msg-1")
	final, err := orc.Run(context.Background(), state, Input{Message: "do the thing"})
	require.NoError(t, err)
	require.False(t, final.IsComplete)
	require.Equal(t, conversation.NodeWaitingForFeedback, final.Node)
	require.Equal(t, "What would you like me to do?", final.ClassifyClarification)
}

func TestResumeBindsClarificationReplyToMissingParamAndCompletes(t *testing.T) {
	reg := pathtool.NewToolRegistry()
	require.NoError(t, reg.RegisterPathTool(&pathtool.PathTool{
		ToolName:   "add_caption",
		InputType:  wftype.Text,
		OutputType: wftype.Text,
		Parameters: []pathtool.Parameter{{Name: "caption_text", Type: "string", Required: true}},
		HandlerFunc: func(ctx context.Context, input []byte, args map[string]any) ([]byte, error) {
			return []byte(fmt.Sprintf("%s [%v]", input, args["caption_text"])), nil
		},
	}))

	provider := &scriptedProvider{payloads: []string{
		finalizePayload(t, "Captioned.", "added a caption"),
	}}
	exec := executor.New(executor.Config{WorkspaceRoot: t.TempDir()}, nil, nil)
	mgr := checkpoint.NewManager(nil, checkpoint.NewMemoryStorage())
	deps := Deps{
		Tools:      reg,
		Provider:   provider,
		Checkpoint: mgr,
		Hooks:      checkpoint.NewHooks(mgr),
		Events:     eventbus.New(),
		Executor:   exec,
	}
	orc := New(deps)

	attDir := t.TempDir()
	attPath := filepath.Join(attDir, "in.txt")
	require.NoError(t, os.WriteFile(attPath, []byte("hello"), 0o644))

	state := conversation.New("conv-1", "msg-1")
	state.Objective = "caption this text"
	state.IsComplex = true
	state.InputType = wftype.Text
	state.ChosenPath = &planner.PathCandidate{Edges: []pathtool.Edge{
		{Name: "add_caption", From: wftype.Text, To: wftype.Text},
	}}
	state.NextNode = conversation.NodeExecute

	stalled, err := orc.Run(context.Background(), state, Input{
		Attachments: []conversation.Attachment{{Path: attPath, MIMEType: "text/plain"}},
	})
	require.NoError(t, err)
	require.False(t, stalled.IsComplete)
	require.Equal(t, conversation.NodeWaitingForFeedback, stalled.Node)
	require.Contains(t, stalled.PendingParams, "caption_text")
	require.Empty(t, stalled.ExecutionResults, "the stalled step should not have recorded a result")

	final, err := orc.Resume(context.Background(), stalled, "a sunny afternoon",
		[]conversation.Attachment{{Path: attPath, MIMEType: "text/plain"}})
	require.NoError(t, err)
	require.True(t, final.IsComplete)
	require.Equal(t, conversation.NodeComplete, final.Node)
	require.Len(t, final.ExecutionResults, 1)
	require.Equal(t, "a sunny afternoon", final.ExecutionResults[0].BoundArgs["caption_text"])
}

func TestRunSurfacesInvariantViolationOnIterationBudget(t *testing.T) {
	provider := &scriptedProvider{payloads: []string{}}
	deps, _ := newDeps(t, provider)
	orc := New(deps)

	state := conversation.New("conv-1", "msg-1")
	for i := 0; i < MaxIterationsPerNode; i++ {
		state.IterationCounts[conversation.NodeClassify] = i
	}
	state.IterationCounts[conversation.NodeClassify] = MaxIterationsPerNode

	_, err := orc.Run(context.Background(), state, Input{Message: "hi"})
	var violation *InvariantViolation
	require.ErrorAs(t, err, &violation)
}
