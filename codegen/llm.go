package codegen

import (
	"context"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/exemplar/ai/openrouter"
	"github.com/teranos/exemplar/ai/provider"
	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
)

// LLMBackend is a Backend over a chat model.
type LLMBackend struct {
	client  provider.AIClient
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewLLMBackend wraps client. requestsPerMinute <= 0 disables pacing.
func NewLLMBackend(client provider.AIClient, requestsPerMinute int, log *zap.SugaredLogger) *LLMBackend {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	return &LLMBackend{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Nop(log),
	}
}

// Provider names the chat provider.
func (b *LLMBackend) Provider() string { return b.client.Provider() }

// Model names the chat model.
func (b *LLMBackend) Model() string { return b.client.Model() }

// Plan implements Backend.
func (b *LLMBackend) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	resp, latency, err := b.chat(ctx, planSystemPrompt, buildPlanPrompt(req))
	if err != nil {
		return nil, err
	}
	var plan Plan
	if err := decodeResponse(resp.Content, &plan); err != nil {
		return nil, errors.Wrap(err, "plan response")
	}
	if len(plan.Steps) == 0 && len(plan.FieldMappings) == 0 {
		return nil, errors.Transient(errors.New("plan response has no steps and no field mappings"))
	}
	plan.Usage = b.usage(resp, latency)
	return &plan, nil
}

// Implement implements Backend.
func (b *LLMBackend) Implement(ctx context.Context, req ImplementRequest) (*Implementation, error) {
	resp, latency, err := b.chat(ctx, implementSystemPrompt, buildImplementPrompt(req))
	if err != nil {
		return nil, err
	}
	var impl Implementation
	if err := decodeResponse(resp.Content, &impl); err != nil {
		return nil, errors.Wrap(err, "implementation response")
	}
	if strings.TrimSpace(impl.Source) == "" {
		return nil, errors.Transient(errors.New("implementation response has no source"))
	}
	impl.Usage = b.usage(resp, latency)
	return &impl, nil
}

func (b *LLMBackend) chat(ctx context.Context, system, user string) (*openrouter.ChatResponse, time.Duration, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, 0, errors.Terminal(errors.Wrap(err, "waiting for request slot"))
	}
	start := time.Now()
	resp, err := b.client.Chat(ctx, openrouter.ChatRequest{SystemPrompt: system, UserPrompt: user})
	latency := time.Since(start)
	if err != nil {
		return nil, latency, err
	}
	b.logger.Debugw("backend responded",
		logger.FieldProvider, b.client.Provider(),
		logger.FieldModel, resp.Model,
		logger.FieldTokens, resp.Usage.TotalTokens,
		logger.FieldDurationMS, latency.Milliseconds())
	return resp, latency, nil
}

func (b *LLMBackend) usage(resp *openrouter.ChatResponse, latency time.Duration) Usage {
	model := resp.Model
	if model == "" {
		model = b.client.Model()
	}
	return Usage{
		Provider:         b.client.Provider(),
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Cost:             resp.Usage.Cost,
		Latency:          latency,
	}
}

var fencePattern = regexp.MustCompile("```[a-zA-Z]*\n|```")

// decodeResponse extracts the JSON object from a model reply. Code fences
// and prose around the object are ignored. Undecodable replies are transient.
func decodeResponse(content string, v interface{}) error {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(content, ""))
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end < start {
		return errors.Transient(errors.Newf("no JSON object in response (%d bytes)", len(content)))
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), v); err != nil {
		return errors.Transient(errors.Wrap(err, "decode JSON object"))
	}
	return nil
}
