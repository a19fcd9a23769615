package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pr0ta9/genesis/internal/httpclient"
)

// AnthropicConfig configures the Claude messages-API backend.
type AnthropicConfig struct {
	APIKey     string
	Host       string // defaults to https://api.anthropic.com/v1
	Model      string // defaults to claude-3-5-sonnet-20241022
	MaxRetries int
}

// Anthropic implements Provider against the Messages API, using a tool
// call (forced via tool_choice) to obtain schema-conformant structured
// output: Anthropic has no native response_format/json_schema mode.
type Anthropic struct {
	client *httpclient.Client
	apiKey string
	host   string
	model  string
}

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	host := cfg.Host
	if host == "" {
		host = "https://api.anthropic.com/v1"
	}
	opts := []httpclient.Option{}
	if cfg.MaxRetries > 0 {
		opts = append(opts, httpclient.WithMaxRetries(cfg.MaxRetries))
	}
	return &Anthropic{client: httpclient.New(opts...), apiKey: cfg.APIKey, host: host, model: model}
}

func (p *Anthropic) Name() string      { return "anthropic" }
func (p *Anthropic) ModelName() string { return p.model }

// CountTokens has no offline tiktoken-equivalent for Claude; this is a
// rough rune-based estimate, documented as approximate.
func (p *Anthropic) CountTokens(text string) int {
	return (len([]rune(text)) + 3) / 4
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model      string              `json:"model"`
	System     string              `json:"system,omitempty"`
	Messages   []anthropicMessage  `json:"messages"`
	Tools      []anthropicTool     `json:"tools"`
	ToolChoice anthropicToolChoice `json:"tool_choice"`
	MaxTokens  int                 `json:"max_tokens"`
	Stream     bool                `json:"stream"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// GenerateStructured forces a single tool call shaped by req.Schema and
// streams its partial_json deltas as the structured result; Claude's
// content_block_delta text (if any precedes the tool call) is forwarded
// as reasoning, the closest analog this API has to a separate channel.
func (p *Anthropic) GenerateStructured(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	var system string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	name := req.SchemaName
	if name == "" {
		name = "structured_output"
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	body, err := json.Marshal(anthropicRequest{
		Model:      p.model,
		System:     system,
		Messages:   messages,
		Tools:      []anthropicTool{{Name: name, Description: "Emit the required structured result.", InputSchema: req.Schema}},
		ToolChoice: anthropicToolChoice{Type: "tool", Name: name},
		MaxTokens:  maxTokens,
		Stream:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: anthropic request failed: %w", err)
	}

	out := make(chan StreamEvent, 8)
	go p.streamResponse(resp.Body, out)
	return out, nil
}

func (p *Anthropic) streamResponse(body io.ReadCloser, out chan<- StreamEvent) {
	defer close(out)
	defer body.Close()

	var jsonBuf strings.Builder
	tokens := 0

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev anthropicStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		switch ev.Delta.Type {
		case "text_delta":
			out <- StreamEvent{Type: EventReasoningDelta, ReasoningDelta: ev.Delta.Text}
		case "input_json_delta":
			jsonBuf.WriteString(ev.Delta.PartialJSON)
		}
		if ev.Usage != nil {
			tokens = ev.Usage.OutputTokens
		}
	}

	if err := scanner.Err(); err != nil {
		out <- StreamEvent{Type: EventError, Err: fmt.Errorf("llm: reading anthropic stream: %w", err)}
		return
	}

	if tokens == 0 {
		tokens = p.CountTokens(jsonBuf.String())
	}
	out <- StreamEvent{Type: EventResult, ResultJSON: jsonBuf.String(), TokensUsed: tokens}
}

var _ Provider = (*Anthropic)(nil)
