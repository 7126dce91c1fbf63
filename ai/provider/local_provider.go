package provider

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
	"github.com/teranos/exemplar/internal/util"
	"github.com/teranos/exemplar/logger"
)

// LocalClient talks to an OpenAI-compatible local server (Ollama, LocalAI)
// at /v1/chat/completions. Loopback addresses are allowed here and nowhere else.
type LocalClient struct {
	baseURL    string
	model      string
	httpClient *httpclient.SaferClient
	logger     *zap.SugaredLogger
}

// LocalClientConfig configures a LocalClient
type LocalClientConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.SugaredLogger
}

// NewLocalClient creates a local inference client
func NewLocalClient(cfg LocalClientConfig) *LocalClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	return &LocalClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: httpclient.NewWithOptions(cfg.Timeout, httpclient.Options{
			BlockPrivateIP: util.Ptr(false),
		}),
		logger: logger.Nop(cfg.Logger),
	}
}

// Model returns the configured model
func (lc *LocalClient) Model() string { return lc.model }

// Provider names the backend for usage records
func (lc *LocalClient) Provider() string { return string(ProviderLocal) }

// localRequest matches the OpenAI chat format; Ollama reads options too.
type localRequest struct {
	Model       string               `json:"model"`
	Messages    []openrouter.Message `json:"messages"`
	Stream      bool                 `json:"stream"`
	Temperature *float64             `json:"temperature,omitempty"`
	MaxTokens   *int                 `json:"max_tokens,omitempty"`
}

// Chat implements AIClient. Local servers rarely report usage; when they
// do it is passed through, and cost is always zero.
func (lc *LocalClient) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	model := lc.model
	if req.Model != nil {
		model = *req.Model
	}
	messages := []openrouter.Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]openrouter.Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	body, err := json.Marshal(localRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, errors.Terminal(errors.Wrap(err, "failed to marshal request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, lc.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Terminal(errors.Wrap(err, "failed to create request"))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	lc.logger.Debugw("local chat request", logger.FieldModel, model, "url", lc.baseURL)

	resp, err := lc.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.WithHintf(openrouter.ClassifyTransport(ctx, err),
			"is the local inference server running at %s?", lc.baseURL)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Transient(errors.Wrap(err, "failed to read response"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, openrouter.ClassifyStatus(resp.StatusCode, respBody)
	}

	var out openrouter.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.Transient(errors.Wrap(err, "failed to unmarshal response"))
	}
	if len(out.Choices) == 0 {
		return nil, errors.Transient(errors.New("no choices in local inference response"))
	}

	usage := out.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return &openrouter.ChatResponse{
		Content: strings.TrimSpace(out.Choices[0].Message.Content),
		Model:   model,
		Usage:   usage,
	}, nil
}
