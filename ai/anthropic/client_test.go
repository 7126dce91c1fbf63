package anthropic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/exemplar/ai/openrouter"
	"github.com/teranos/exemplar/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL})
	client.SetHTTPClient(server.Client())
	return client
}

func TestChat_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		var req MessagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "system text", req.System)
		assert.Equal(t, DefaultModel, req.Model)
		require.Len(t, req.Messages, 1)

		w.Write([]byte(`{"id":"m1","type":"message","role":"assistant","content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}],"stop_reason":"end_turn","usage":{"input_tokens":1000,"output_tokens":200}}`))
	})

	resp, err := client.Chat(context.Background(), openrouter.ChatRequest{SystemPrompt: "system text", UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", resp.Content)
	assert.Equal(t, 1200, resp.Usage.TotalTokens)
	// ($3 * 1000/1M) + ($15 * 200/1M)
	assert.InDelta(t, 0.006, resp.Usage.Cost, 1e-9)
}

func TestChat_OverloadedIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"overloaded_error"}}`, 529)
	})
	_, err := client.Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestChat_RefusalIsTerminal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[],"stop_reason":"refusal"}`))
	})
	_, err := client.Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.IsTerminal(err))
}

func TestCalculateCost(t *testing.T) {
	assert.InDelta(t, 0.09, CalculateCost("claude-opus-4", 1000, 1000), 1e-9)
	assert.Equal(t, DefaultPricingFallback, CalculateCost("claude-unknown", 1, 1))
}
