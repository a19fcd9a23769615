package agent

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func TestConvertSchemaRoundTripsToMap(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type:     "object",
		Required: []string{"query"},
		Properties: map[string]any{
			"query": map[string]any{"type": "string"},
		},
	}
	out := convertSchema(schema)
	require.Equal(t, "object", out["type"])
	require.Contains(t, out, "properties")
}

func TestParseMCPResultConcatenatesTextContent(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "hello "},
			mcp.TextContent{Type: "text", Text: "world"},
		},
	}
	out := parseMCPResult(resp)
	require.Equal(t, "hello world", out["text"])
	require.Equal(t, false, out["is_error"])
}

func TestParseMCPResultHandlesNilResponse(t *testing.T) {
	require.Equal(t, map[string]any{}, parseMCPResult(nil))
}

func TestConvertEnvFormatsKeyValuePairs(t *testing.T) {
	out := convertEnv(map[string]string{"FOO": "bar"})
	require.Equal(t, []string{"FOO=bar"}, out)
}
