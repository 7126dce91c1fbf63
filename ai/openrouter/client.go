// Package openrouter is the OpenAI-compatible chat client used for the
// code-generation backend. Its request and response types double as the
// provider-neutral shapes shared by every client in ai/.
package openrouter

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/internal/httpclient"
	"github.com/teranos/exemplar/logger"
)

const (
	// DefaultModel is the fallback model when none is specified.
	// Should match the default in am/defaults.go.
	DefaultModel = "anthropic/claude-sonnet-4"

	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// maxResponseBody caps how much of a completion is read.
	maxResponseBody = 16 << 20
)

// Client is an OpenRouter API client. One Chat call is one HTTP request:
// retrying is the caller's decision, driven by errors.IsTransient.
type Client struct {
	baseURL    string
	httpClient *httpclient.SaferClient
	config     Config
	logger     *zap.SugaredLogger
}

// Config holds client configuration
type Config struct {
	APIKey      string
	Model       string
	Temperature *float64 // nil = use default (0.2)
	MaxTokens   *int     // nil = use default (8192)
	BaseURL     string   // "" = DefaultBaseURL
	Timeout     time.Duration
	Title       string             // X-Title header for the OpenRouter dashboard
	Logger      *zap.SugaredLogger // nil = nop logger
}

// NewClient creates an OpenRouter client with defaults applied
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		defaultTemp := 0.2
		config.Temperature = &defaultTemp
	}
	if config.MaxTokens == nil {
		defaultTokens := 8192
		config.MaxTokens = &defaultTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.Title == "" {
		config.Title = "exemplar"
	}
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpclient.New(config.Timeout),
		config:     config,
		logger:     logger.Nop(config.Logger),
	}
}

// ChatRequest is a provider-neutral single-turn request
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64 // Override default temperature
	MaxTokens    *int     // Override default max tokens
	Model        *string  // Override default model
}

// ChatResponse is a provider-neutral completion
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"-"` // USD, estimated from the pricing table
}

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the wire request for /chat/completions
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse is the wire response of /chat/completions
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Model returns the configured default model
func (c *Client) Model() string { return c.config.Model }

// Provider names the backend for usage records
func (c *Client) Provider() string { return "openrouter" }

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient overrides the HTTP client. Only tests should call this:
// production traffic goes through the SSRF-safer default.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// Chat sends one completion request. Failures are marked transient
// (timeouts, 429, 5xx) or terminal (auth, malformed request, refusals).
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, errors.Terminal(errors.WithHint(
			errors.New("OpenRouter API key not configured"),
			"set OPENROUTER_API_KEY or backend.openrouter.api_key"))
	}

	temperature := *c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := *c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	model := c.config.Model
	if req.Model != nil {
		model = *req.Model
	}

	messages := []Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	c.logger.Debugw("chat request",
		logger.FieldModel, model,
		"temperature", temperature,
		"max_tokens", maxTokens,
		"prompt_chars", len(req.SystemPrompt)+len(req.UserPrompt))

	resp, err := c.CreateChatCompletion(ctx, ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "OpenRouter API error")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Transient(errors.New("no response choices from OpenRouter"))
	}

	usage := resp.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	usage.Cost = CalculateCost(model, usage.PromptTokens, usage.CompletionTokens)

	c.logger.Debugw("chat response",
		logger.FieldModel, model,
		"content_length", len(resp.Choices[0].Message.Content),
		logger.FieldTokens, usage.TotalTokens)

	return &ChatResponse{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:   model,
		Usage:   usage,
	}, nil
}

// CreateChatCompletion posts a raw completion request
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Terminal(errors.Wrap(err, "failed to marshal request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Terminal(errors.Wrap(err, "failed to create request"))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("X-Title", c.config.Title)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, ClassifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Transient(errors.Wrap(err, "failed to read response"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyStatus(resp.StatusCode, respBody)
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Transient(errors.Wrap(err, "failed to unmarshal response"))
	}
	return &chatResp, nil
}
