// Package provider selects the chat client that backs code generation.
package provider

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/exemplar/ai/anthropic"
	"github.com/teranos/exemplar/ai/openrouter"
	"github.com/teranos/exemplar/am"
	"github.com/teranos/exemplar/errors"
)

// Provider represents an LLM provider type
type Provider string

const (
	// ProviderLocal uses local inference (Ollama, LocalAI)
	ProviderLocal Provider = "local"
	// ProviderOpenRouter uses OpenRouter.ai API
	ProviderOpenRouter Provider = "openrouter"
	// ProviderAnthropic uses direct Anthropic API
	ProviderAnthropic Provider = "anthropic"
	// ProviderAuto automatically selects based on configuration
	ProviderAuto Provider = "auto"
)

// AIClient is implemented by every provider
type AIClient interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
	// Model and Provider label usage records.
	Model() string
	Provider() string
}

// NewAIClient creates the client named by cfg.Backend.Provider.
// "auto" prefers local inference when enabled, then Anthropic when a key
// is set, then OpenRouter.
func NewAIClient(cfg *am.Config, log *zap.SugaredLogger) (AIClient, error) {
	p, err := ParseProvider(cfg.Backend.Provider)
	if err != nil {
		return nil, err
	}
	return NewAIClientWithProvider(cfg, p, log)
}

// NewAIClientWithProvider creates a client for a specific provider
func NewAIClientWithProvider(cfg *am.Config, p Provider, log *zap.SugaredLogger) (AIClient, error) {
	if p == ProviderAuto {
		p = autoSelect(cfg)
	}

	switch p {
	case ProviderLocal:
		if cfg.Backend.Local.BaseURL == "" {
			return nil, errors.NewInvalidConfigError("backend.local.base_url is required for local inference")
		}
		return NewLocalClient(LocalClientConfig{
			BaseURL: cfg.Backend.Local.BaseURL,
			Model:   cfg.Backend.Local.Model,
			Timeout: cfg.BackendTimeout(),
			Logger:  log,
		}), nil

	case ProviderAnthropic:
		return anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.Backend.Anthropic.APIKey,
			Model:       cfg.Backend.Anthropic.Model,
			Temperature: cfg.Backend.Anthropic.Temperature,
			MaxTokens:   cfg.Backend.Anthropic.MaxTokens,
			BaseURL:     cfg.Backend.Anthropic.BaseURL,
			Timeout:     cfg.BackendTimeout(),
			Logger:      log,
		}), nil

	case ProviderOpenRouter:
		return openrouter.NewClient(openrouter.Config{
			APIKey:      cfg.Backend.OpenRouter.APIKey,
			Model:       cfg.Backend.OpenRouter.Model,
			Temperature: cfg.Backend.OpenRouter.Temperature,
			MaxTokens:   cfg.Backend.OpenRouter.MaxTokens,
			BaseURL:     cfg.Backend.OpenRouter.BaseURL,
			Timeout:     cfg.BackendTimeout(),
			Logger:      log,
		}), nil
	}
	return nil, errors.NewInvalidConfigError("unknown provider %q", p)
}

func autoSelect(cfg *am.Config) Provider {
	if cfg.Backend.Local.Enabled {
		return ProviderLocal
	}
	if cfg.Backend.Anthropic.APIKey != "" {
		return ProviderAnthropic
	}
	return ProviderOpenRouter
}

// GetAvailableProviders returns the providers that are configured
func GetAvailableProviders(cfg *am.Config) []Provider {
	var providers []Provider
	if cfg.Backend.Local.Enabled {
		providers = append(providers, ProviderLocal)
	}
	if cfg.Backend.Anthropic.APIKey != "" {
		providers = append(providers, ProviderAnthropic)
	}
	if cfg.Backend.OpenRouter.APIKey != "" {
		providers = append(providers, ProviderOpenRouter)
	}
	return providers
}

// ParseProvider converts a string to a Provider type
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "ollama", "localai":
		return ProviderLocal, nil
	case "openrouter", "or":
		return ProviderOpenRouter, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "auto", "":
		return ProviderAuto, nil
	default:
		return "", errors.NewInvalidConfigError("unknown provider: %s (valid: local, openrouter, anthropic, auto)", s)
	}
}

// Verify interfaces are implemented
var _ AIClient = (*openrouter.Client)(nil)
var _ AIClient = (*anthropic.Client)(nil)
var _ AIClient = (*LocalClient)(nil)
