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

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/pr0ta9/genesis/internal/httpclient"
)

// OpenAIConfig configures the OpenAI chat-completions backend.
type OpenAIConfig struct {
	APIKey      string
	Host        string // defaults to https://api.openai.com/v1
	Model       string // defaults to gpt-4o
	MaxRetries  int
	Temperature float64
}

// OpenAI implements Provider against the chat completions endpoint with
// response_format: json_schema for structured output.
type OpenAI struct {
	client *httpclient.Client
	apiKey string
	host   string
	model  string
	enc    *tiktoken.Tiktoken
}

// NewOpenAI constructs an OpenAI structured-output provider. Token
// encoding falls back to a nil encoder (CountTokens then estimates by
// rune count) if the model's encoding can't be resolved offline.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	host := cfg.Host
	if host == "" {
		host = "https://api.openai.com/v1"
	}
	opts := []httpclient.Option{httpclient.WithHeaderParser(parseOpenAIRateLimitHeaders)}
	if cfg.MaxRetries > 0 {
		opts = append(opts, httpclient.WithMaxRetries(cfg.MaxRetries))
	}

	enc, _ := tiktoken.EncodingForModel(model)

	return &OpenAI{
		client: httpclient.New(opts...),
		apiKey: cfg.APIKey,
		host:   host,
		model:  model,
		enc:    enc,
	}
}

func (p *OpenAI) Name() string      { return "openai" }
func (p *OpenAI) ModelName() string { return p.model }

// CountTokens estimates the token count of text using the model's
// tiktoken encoding, falling back to a rough rune/4 heuristic when the
// encoding table isn't available.
func (p *OpenAI) CountTokens(text string) int {
	if p.enc != nil {
		return len(p.enc.Encode(text, nil, nil))
	}
	return (len([]rune(text)) + 3) / 4
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaBody `json:"json_schema"`
}

type jsonSchemaBody struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat *jsonSchemaFormat `json:"response_format,omitempty"`
	Stream         bool              `json:"stream"`
	Temperature    float64           `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateStructured streams a chat completion constrained to req.Schema.
// OpenAI's chat completions API has no separate reasoning-token channel
// for this model family, so per the ambient streaming contract this
// adapter emits a single synthetic empty reasoning block before the
// terminal result, rather than fabricating intermediate reasoning text.
func (p *OpenAI) GenerateStructured(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	messages := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	name := req.SchemaName
	if name == "" {
		name = "structured_output"
	}

	body, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: messages,
		ResponseFormat: &jsonSchemaFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchemaBody{Name: name, Schema: req.Schema, Strict: true},
		},
		Stream:      true,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: openai request failed: %w", err)
	}

	out := make(chan StreamEvent, 8)
	go p.streamResponse(resp.Body, out)
	return out, nil
}

func (p *OpenAI) streamResponse(body io.ReadCloser, out chan<- StreamEvent) {
	defer close(out)
	defer body.Close()
	out <- StreamEvent{Type: EventReasoningDelta, ReasoningDelta: ""}

	var content strings.Builder
	tokens := 0

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			tokens = chunk.Usage.TotalTokens
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		out <- StreamEvent{Type: EventError, Err: fmt.Errorf("llm: reading openai stream: %w", err)}
		return
	}

	if tokens == 0 {
		tokens = p.CountTokens(content.String())
	}

	out <- StreamEvent{Type: EventResult, ResultJSON: content.String(), TokensUsed: tokens}
}

// parseOpenAIRateLimitHeaders extracts OpenAI's x-ratelimit-* headers
// into the shared httpclient.RateLimitInfo shape.
func parseOpenAIRateLimitHeaders(h http.Header) httpclient.RateLimitInfo {
	var info httpclient.RateLimitInfo
	if v := h.Get("x-ratelimit-remaining-requests"); v != "" {
		fmt.Sscanf(v, "%d", &info.RequestsRemaining)
	}
	if v := h.Get("x-ratelimit-remaining-tokens"); v != "" {
		fmt.Sscanf(v, "%d", &info.TokensRemaining)
	}
	return info
}

var _ Provider = (*OpenAI)(nil)
