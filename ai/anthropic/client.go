// Package anthropic talks to the Anthropic Messages API and presents it
// through the provider-neutral openrouter.ChatRequest/ChatResponse shapes.
package anthropic

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/teranos/exemplar/ai/openrouter"
	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/internal/httpclient"
	"github.com/teranos/exemplar/logger"
)

const (
	// DefaultModel is the default Claude model
	DefaultModel = "claude-sonnet-4-20250514"

	// BaseURL is the Anthropic API endpoint
	BaseURL = "https://api.anthropic.com/v1"

	// APIVersion is the required Anthropic API version header
	APIVersion = "2023-06-01"

	maxResponseBody = 16 << 20
)

// Client represents an Anthropic API client
type Client struct {
	baseURL    string
	httpClient *httpclient.SaferClient
	config     Config
	logger     *zap.SugaredLogger
}

// Config holds Anthropic client configuration
type Config struct {
	APIKey      string
	Model       string
	Temperature *float64 // nil = 0.2
	MaxTokens   *int     // nil = 8192
	BaseURL     string   // "" = BaseURL
	Timeout     time.Duration
	Logger      *zap.SugaredLogger
}

// NewClient creates a new Anthropic API client
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		t := 0.2
		config.Temperature = &t
	}
	if config.MaxTokens == nil {
		n := 8192
		config.MaxTokens = &n
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = BaseURL
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpclient.New(config.Timeout),
		config:     config,
		logger:     logger.Nop(config.Logger),
	}
}

// MessagesRequest represents a request to the Anthropic Messages API
type MessagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Message represents a message in the conversation
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// MessagesResponse represents the response from the Messages API
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// ContentBlock represents a content block in the response
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Model returns the configured default model
func (c *Client) Model() string { return c.config.Model }

// Provider names the backend for usage records
func (c *Client) Provider() string { return "anthropic" }

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient overrides the HTTP client. Tests only.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// Chat sends one Messages request. Error classification matches the
// OpenRouter client; an Anthropic 529 (overloaded) is transient.
func (c *Client) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, errors.Terminal(errors.WithHint(
			errors.New("Anthropic API key not configured"),
			"set ANTHROPIC_API_KEY or backend.anthropic.api_key"))
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

	c.logger.Debugw("messages request",
		logger.FieldModel, model,
		"temperature", temperature,
		"max_tokens", maxTokens)

	resp, err := c.createMessages(ctx, MessagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      req.SystemPrompt,
		Messages:    []Message{{Role: "user", Content: req.UserPrompt}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "Anthropic API error")
	}

	if resp.StopReason == "refusal" {
		return nil, errors.Terminal(errors.New("Anthropic refused the request"))
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.Transient(errors.Newf("empty response from Anthropic (stop_reason=%s)", resp.StopReason))
	}

	return &openrouter.ChatResponse{
		Content: strings.TrimSpace(text.String()),
		Model:   model,
		Usage: openrouter.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
			Cost:             CalculateCost(model, resp.Usage.InputTokens, resp.Usage.OutputTokens),
		},
	}, nil
}

func (c *Client) createMessages(ctx context.Context, req MessagesRequest) (*MessagesResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Terminal(errors.Wrap(err, "failed to marshal request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Terminal(errors.Wrap(err, "failed to create request"))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, openrouter.ClassifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Transient(errors.Wrap(err, "failed to read response"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, openrouter.ClassifyStatus(resp.StatusCode, respBody)
	}

	var out MessagesResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.Transient(errors.Wrap(err, "failed to unmarshal response"))
	}
	return &out, nil
}
