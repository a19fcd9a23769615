package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAIGenerateStructuredParsesSSEStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"{\"objective\":"}}]}`,
			`{"choices":[{"delta":{"content":"\"translate\"}"}}],"usage":{"total_tokens":42}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "test-key", Host: srv.URL, Model: "gpt-4o"})
	ev, err := GenerateStructuredSync(context.Background(), p, Request{
		Messages: []Message{{Role: "user", Content: "translate this"}},
		Schema:   map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	require.Equal(t, EventResult, ev.Type)
	require.Equal(t, `{"objective":"translate"}`, ev.ResultJSON)
	require.Equal(t, 42, ev.TokensUsed)
}

func TestOpenAICountTokensIsPositiveForNonEmptyText(t *testing.T) {
	p := NewOpenAI(OpenAIConfig{Model: "gpt-4o"})
	require.Greater(t, p.CountTokens("hello world, this is a test sentence"), 0)
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	reg := NewRegistry()
	err := reg.RegisterProvider("", NewOpenAI(OpenAIConfig{}))
	require.Error(t, err)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	p := NewOpenAI(OpenAIConfig{Model: "gpt-4o-mini"})
	require.NoError(t, reg.RegisterProvider("openai-mini", p))

	got, ok := reg.Get("openai-mini")
	require.True(t, ok)
	require.Equal(t, "gpt-4o-mini", got.ModelName())
}
