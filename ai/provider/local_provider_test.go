package provider

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

func TestLocalClient_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req localRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5-coder:7b", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"package transform\n"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	defer server.Close()

	// Loopback must be reachable for local inference.
	client := NewLocalClient(LocalClientConfig{BaseURL: server.URL + "/", Model: "qwen2.5-coder:7b"})
	resp, err := client.Chat(context.Background(), openrouter.ChatRequest{SystemPrompt: "s", UserPrompt: "u"})
	require.NoError(t, err)
	assert.Equal(t, "package transform", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Zero(t, resp.Usage.Cost)
}

func TestLocalClient_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewLocalClient(LocalClientConfig{BaseURL: server.URL, Model: "m"})
	_, err := client.Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "u"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestLocalClient_ConnectionRefusedIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewLocalClient(LocalClientConfig{BaseURL: url, Model: "m"})
	_, err := client.Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "u"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err), "got %v", err)
}
