package pathtool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pr0ta9/genesis/internal/wftype"
)

func noopHandler(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
	return input, nil
}

func TestRegisterPathToolRejectsDuplicateName(t *testing.T) {
	r := NewToolRegistry()
	t1 := &PathTool{ToolName: "pdf_extract", InputType: wftype.PDF, OutputType: wftype.Text, HandlerFunc: noopHandler}
	t2 := &PathTool{ToolName: "pdf_extract", InputType: wftype.PDF, OutputType: wftype.JSON, HandlerFunc: noopHandler}

	require.NoError(t, r.RegisterPathTool(t1))

	err := r.RegisterPathTool(t2)
	var dupErr *ErrDuplicateTool
	require.ErrorAs(t, err, &dupErr)
}

func TestRegisterPathToolAllowsSharedSignatureUnderDistinctNames(t *testing.T) {
	r := NewToolRegistry()
	t1 := &PathTool{ToolName: "a", InputType: wftype.PDF, OutputType: wftype.Text, HandlerFunc: noopHandler}
	require.NoError(t, r.RegisterPathTool(t1))

	t2 := &PathTool{ToolName: "b", InputType: wftype.PDF, OutputType: wftype.Text, HandlerFunc: noopHandler}
	require.NoError(t, r.RegisterPathTool(t2))
}

func TestRegisterPathToolRejectsInvalidTypes(t *testing.T) {
	r := NewToolRegistry()
	bad := &PathTool{ToolName: "bad", InputType: "NOT_A_TYPE", OutputType: wftype.Text, HandlerFunc: noopHandler}
	require.Error(t, r.RegisterPathTool(bad))
}

func TestEdgesFromReturnsOnlyMatchingSource(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.RegisterPathTool(&PathTool{ToolName: "pdf_to_text", InputType: wftype.PDF, OutputType: wftype.Text, HandlerFunc: noopHandler}))
	require.NoError(t, r.RegisterPathTool(&PathTool{ToolName: "docx_to_text", InputType: wftype.TextFile, OutputType: wftype.Text, HandlerFunc: noopHandler}))

	edges := r.EdgesFrom(wftype.PDF)
	require.Len(t, edges, 1)
	require.Equal(t, "pdf_to_text", edges[0].ToolName)
}

func TestAgentToolRegistrationAndLookup(t *testing.T) {
	r := NewToolRegistry()
	at := &AgentTool{ToolName: "calculator", HandlerFunc: func(_ context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"result": 4}, nil
	}}
	require.NoError(t, r.RegisterAgentTool(at))

	got, ok := r.AgentTool("calculator")
	require.True(t, ok)
	require.Same(t, at, got)
}
