package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pr0ta9/genesis/internal/pathtool"
)

// MCPToolConfig configures a subprocess MCP server whose tools should be
// exposed to an agent's LLM turn as AgentTools, grounded on
// pkg/tool/mcptoolset's stdio transport (the only transport Genesis's
// agent-tool binding needs; sse/streamable-http toolsets are a server
// deployment concern outside this module's scope).
type MCPToolConfig struct {
	Command string
	Args    []string
	Env     map[string]string
}

// LoadMCPAgentTools starts cfg's MCP server, lists its tools, and wraps
// each as a pathtool.AgentTool callable through AgentTool.Call; the
// LLM-backed agents in this package do not hand agent tools to the
// model. The returned close func stops the
// subprocess and must be called once the tools are no longer needed.
func LoadMCPAgentTools(ctx context.Context, cfg MCPToolConfig) ([]*pathtool.AgentTool, func(), error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, convertEnv(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, nil, fmt.Errorf("agent: create mcp client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("agent: start mcp client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "genesis", Version: "dev"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("agent: initialize mcp client: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("agent: list mcp tools: %w", err)
	}

	tools := make([]*pathtool.AgentTool, 0, len(listResp.Tools))
	for _, mcpTool := range listResp.Tools {
		name := mcpTool.Name
		tools = append(tools, &pathtool.AgentTool{
			ToolName: name,
			Desc:     mcpTool.Description,
			Schema:   convertSchema(mcpTool.InputSchema),
			HandlerFunc: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				req := mcp.CallToolRequest{}
				req.Params.Name = name
				req.Params.Arguments = args
				resp, err := mcpClient.CallTool(ctx, req)
				if err != nil {
					return nil, fmt.Errorf("agent: mcp call %q: %w", name, err)
				}
				return parseMCPResult(resp), nil
			},
		})
	}

	return tools, func() { mcpClient.Close() }, nil
}

// convertSchema round-trips an MCP tool's typed input schema through
// JSON into a plain map, matching the structured-output schema shape
// every other agent result already uses.
func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func convertEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// parseMCPResult flattens an MCP tool result's text content blocks into
// a single map the rest of Genesis treats like any other AgentTool
// result.
func parseMCPResult(resp *mcp.CallToolResult) map[string]any {
	if resp == nil {
		return map[string]any{}
	}
	var text string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return map[string]any{"text": text, "is_error": resp.IsError}
}
