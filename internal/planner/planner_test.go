package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// fakeRegistry is a minimal adjacency list, avoiding a dependency on a
// fully wired *pathtool.ToolRegistry for these pure graph-search tests.
type fakeRegistry struct {
	edges map[wftype.Type][]*pathtool.PathTool
}

func (f *fakeRegistry) EdgesFrom(from wftype.Type) []*pathtool.PathTool {
	return f.edges[from]
}

func tool(name string, from, to wftype.Type, preferred float64) *pathtool.PathTool {
	return &pathtool.PathTool{ToolName: name, InputType: from, OutputType: to, Preferred: preferred}
}

func TestFindPathsReturnsShortestFirst(t *testing.T) {
	reg := &fakeRegistry{edges: map[wftype.Type][]*pathtool.PathTool{
		wftype.PDF:  {tool("pdf_extract", wftype.PDF, wftype.Text, 1.0)},
		wftype.Text: {tool("text_to_json", wftype.Text, wftype.JSON, 0.5)},
	}}

	paths, err := FindPaths(reg, wftype.PDF, []wftype.Type{wftype.Text, wftype.JSON}, Options{})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, 1, paths[0].Length())
	assert.Equal(t, wftype.Text, paths[0].OutputType())
	assert.Equal(t, 2, paths[1].Length())
	assert.Equal(t, wftype.JSON, paths[1].OutputType())
}

func TestFindPathsForbidsRevisitingTypes(t *testing.T) {
	reg := &fakeRegistry{edges: map[wftype.Type][]*pathtool.PathTool{
		wftype.Text:     {tool("save", wftype.Text, wftype.TextFile, 1.0)},
		wftype.TextFile: {tool("load", wftype.TextFile, wftype.Text, 1.0)},
	}}

	_, err := FindPaths(reg, wftype.Text, []wftype.Type{wftype.Text}, Options{MaxDepth: 4})
	require.Error(t, err)
	var npf *NoPathFound
	require.ErrorAs(t, err, &npf)
}

func TestFindPathsRespectsDepthBound(t *testing.T) {
	reg := &fakeRegistry{edges: map[wftype.Type][]*pathtool.PathTool{
		wftype.PDF:   {tool("a", wftype.PDF, wftype.Text, 1.0)},
		wftype.Text:  {tool("b", wftype.Text, wftype.JSON, 1.0)},
		wftype.JSON:  {tool("c", wftype.JSON, wftype.Table, 1.0)},
		wftype.Table: {tool("d", wftype.Table, wftype.Audio, 1.0)},
	}}

	_, err := FindPaths(reg, wftype.PDF, []wftype.Type{wftype.Audio}, Options{MaxDepth: 2})
	var npf *NoPathFound
	require.ErrorAs(t, err, &npf)
}

func TestFindPathsEmptySatisfyingAcceptsAnySink(t *testing.T) {
	reg := &fakeRegistry{edges: map[wftype.Type][]*pathtool.PathTool{
		wftype.PDF: {tool("pdf_extract", wftype.PDF, wftype.Text, 1.0)},
	}}

	paths, err := FindPaths(reg, wftype.PDF, nil, Options{})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, wftype.Text, paths[0].OutputType())
}

func TestFindPathsPrefersHigherPreferredScoreAtEqualLength(t *testing.T) {
	reg := &fakeRegistry{edges: map[wftype.Type][]*pathtool.PathTool{
		wftype.PDF: {
			tool("pdf_extract_a", wftype.PDF, wftype.Text, 0.2),
			tool("pdf_extract_b", wftype.PDF, wftype.Text, 0.9),
		},
	}}

	paths, err := FindPaths(reg, wftype.PDF, []wftype.Type{wftype.Text}, Options{})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "pdf_extract_b", paths[0].Edges[0].Name)
}
