package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/wftype"
)

func echoTool(name string, params []pathtool.Parameter) *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:   name,
		InputType:  wftype.Text,
		OutputType: wftype.Text,
		Parameters: params,
		HandlerFunc: func(ctx context.Context, input []byte, args map[string]any) ([]byte, error) {
			return []byte(fmt.Sprintf("%s(%v)", name, args)), nil
		},
	}
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	dir := t.TempDir()
	return New(Config{WorkspaceRoot: dir, StepTimeout: time.Second, RateLimitPerSec: 1000}, nil, nil)
}

func TestRunStepBindsExplicitArgOverPriorOutput(t *testing.T) {
	ex := newTestExecutor(t)
	tool := echoTool("caption", []pathtool.Parameter{{Name: "text", Type: string(wftype.Text), Required: true}})

	attDir := t.TempDir()
	attPath := filepath.Join(attDir, "in.txt")
	require.NoError(t, os.WriteFile(attPath, []byte("hello"), 0o644))

	result, err := ex.RunStep(context.Background(), "conv-1", "msg-1", Step{Tool: tool, Index: 0},
		"objective", "message",
		map[string]any{"text": "explicit value"},
		[]Artifact{{Path: attPath, Type: wftype.Text}},
		[]Artifact{{Path: attPath, Type: wftype.Text}},
	)
	require.NoError(t, err)
	require.Equal(t, "explicit", result.BoundArgs["text"].Source)
	require.Equal(t, "ok", result.Status)
}

func TestRunStepReturnsPartialBindingForMissingRequiredParam(t *testing.T) {
	ex := newTestExecutor(t)
	tool := echoTool("caption", []pathtool.Parameter{{Name: "text", Type: "string", Required: true}})

	attDir := t.TempDir()
	attPath := filepath.Join(attDir, "in.txt")
	require.NoError(t, os.WriteFile(attPath, []byte("hello"), 0o644))

	_, err := ex.RunStep(context.Background(), "conv-1", "msg-1", Step{Tool: tool, Index: 0},
		"objective", "message", nil, nil,
		[]Artifact{{Path: attPath, Type: wftype.Text}},
	)
	var partial *PartialBinding
	require.ErrorAs(t, err, &partial)
	require.Contains(t, partial.MissingParams, "text")
}

func TestRunStepUsesDefaultWhenNothingElseResolves(t *testing.T) {
	ex := newTestExecutor(t)
	tool := echoTool("caption", []pathtool.Parameter{{Name: "text", Type: "string", Default: "fallback"}})

	attDir := t.TempDir()
	attPath := filepath.Join(attDir, "in.txt")
	require.NoError(t, os.WriteFile(attPath, []byte("hello"), 0o644))

	result, err := ex.RunStep(context.Background(), "conv-1", "msg-1", Step{Tool: tool, Index: 0},
		"objective", "message", nil, nil,
		[]Artifact{{Path: attPath, Type: wftype.Text}},
	)
	require.NoError(t, err)
	require.Equal(t, "default", result.BoundArgs["text"].Source)
}

func TestRunStepRetriesTransientFailureThenSucceeds(t *testing.T) {
	ex := newTestExecutor(t)
	attempts := 0
	tool := &pathtool.PathTool{
		ToolName:   "flaky",
		InputType:  wftype.Text,
		OutputType: wftype.Text,
		HandlerFunc: func(ctx context.Context, input []byte, args map[string]any) ([]byte, error) {
			attempts++
			if attempts < 2 {
				return nil, Transient(fmt.Errorf("temporary network blip"))
			}
			return []byte("done"), nil
		},
	}

	attDir := t.TempDir()
	attPath := filepath.Join(attDir, "in.txt")
	require.NoError(t, os.WriteFile(attPath, []byte("hello"), 0o644))

	result, err := ex.RunStep(context.Background(), "conv-1", "msg-1", Step{Tool: tool, Index: 0},
		"objective", "message", nil, nil,
		[]Artifact{{Path: attPath, Type: wftype.Text}},
	)
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, "ok", result.Status)
}

func TestRunStepFailsImmediatelyOnNonTransientError(t *testing.T) {
	ex := newTestExecutor(t)
	attempts := 0
	tool := &pathtool.PathTool{
		ToolName:   "broken",
		InputType:  wftype.Text,
		OutputType: wftype.Text,
		HandlerFunc: func(ctx context.Context, input []byte, args map[string]any) ([]byte, error) {
			attempts++
			return nil, fmt.Errorf("deterministic crash")
		},
	}

	attDir := t.TempDir()
	attPath := filepath.Join(attDir, "in.txt")
	require.NoError(t, os.WriteFile(attPath, []byte("hello"), 0o644))

	_, err := ex.RunStep(context.Background(), "conv-1", "msg-1", Step{Tool: tool, Index: 0},
		"objective", "message", nil, nil,
		[]Artifact{{Path: attPath, Type: wftype.Text}},
	)
	var failure *StepFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, 1, attempts)
}

func TestRunStepWritesOutputUnderPerStepWorkspace(t *testing.T) {
	ex := newTestExecutor(t)
	tool := echoTool("caption", nil)

	attDir := t.TempDir()
	attPath := filepath.Join(attDir, "in.txt")
	require.NoError(t, os.WriteFile(attPath, []byte("hello"), 0o644))

	result, err := ex.RunStep(context.Background(), "conv-1", "msg-1", Step{Tool: tool, Index: 3},
		"objective", "message", nil, nil,
		[]Artifact{{Path: attPath, Type: wftype.Text}},
	)
	require.NoError(t, err)
	require.Contains(t, result.OutputPath, filepath.Join("conv-1", "msg-1", "3_caption"))
}

func TestWorkerPoolBoundsConcurrentHandlerInvocations(t *testing.T) {
	dir := t.TempDir()
	ex := New(Config{WorkspaceRoot: dir, StepTimeout: time.Second, RateLimitPerSec: 1000, WorkerPoolSize: 2}, nil, nil)

	var current, peak int32
	block := make(chan struct{})
	tool := &pathtool.PathTool{
		ToolName:   "slow",
		InputType:  wftype.Text,
		OutputType: wftype.Text,
		HandlerFunc: func(ctx context.Context, input []byte, args map[string]any) ([]byte, error) {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-block
			atomic.AddInt32(&current, -1)
			return []byte("done"), nil
		},
	}

	attDir := t.TempDir()
	attPath := filepath.Join(attDir, "in.txt")
	require.NoError(t, os.WriteFile(attPath, []byte("hello"), 0o644))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = ex.RunStep(context.Background(), fmt.Sprintf("conv-%d", i), "msg-1", Step{Tool: tool, Index: 0},
				"objective", "message", nil, nil,
				[]Artifact{{Path: attPath, Type: wftype.Text}},
			)
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(block)
	wg.Wait()

	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
