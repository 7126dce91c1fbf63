package am

import (
	"github.com/teranos/exemplar/errors"
)

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.Backend.Provider {
	case "", "auto", "anthropic", "claude", "openrouter", "or", "local", "ollama", "localai":
	default:
		return errors.NewInvalidConfigError("backend.provider %q is not one of anthropic, openrouter, local, auto", c.Backend.Provider)
	}
	if c.Backend.TimeoutSeconds < 0 {
		return errors.NewInvalidConfigError("backend.timeout_seconds must be >= 0, got %d", c.Backend.TimeoutSeconds)
	}
	if c.Backend.RequestsPerMinute < 0 {
		return errors.NewInvalidConfigError("backend.requests_per_minute must be >= 0, got %d", c.Backend.RequestsPerMinute)
	}
	if c.Backend.Local.Enabled && c.Backend.Local.BaseURL == "" {
		return errors.NewInvalidConfigError("backend.local.base_url cannot be empty when enabled")
	}

	// Zero attempts would mean "never generate": reject rather than silently succeed
	if c.Generation.MaxAttempts < 1 {
		return errors.NewInvalidConfigError("generation.max_attempts must be >= 1, got %d", c.Generation.MaxAttempts)
	}
	if c.Generation.CallRetries < 1 {
		return errors.NewInvalidConfigError("generation.call_retries must be >= 1, got %d", c.Generation.CallRetries)
	}
	if c.Generation.BackoffBaseMS < 0 || c.Generation.BackoffMaxMS < 0 {
		return errors.NewInvalidConfigError("generation backoff values must be >= 0, got base=%d max=%d",
			c.Generation.BackoffBaseMS, c.Generation.BackoffMaxMS)
	}
	if c.Generation.BackoffMaxMS > 0 && c.Generation.BackoffBaseMS > c.Generation.BackoffMaxMS {
		return errors.NewInvalidConfigError("generation.backoff_base_ms (%d) exceeds backoff_max_ms (%d)",
			c.Generation.BackoffBaseMS, c.Generation.BackoffMaxMS)
	}

	if c.Detection.SampleLimit < 0 || c.Detection.MixedSampleLimit < 0 {
		return errors.NewInvalidConfigError("detection sample limits must be >= 0")
	}
	if c.Detection.MaxMappingValues < 0 {
		return errors.NewInvalidConfigError("detection.max_mapping_values must be >= 0, got %d", c.Detection.MaxMappingValues)
	}
	if c.Detection.MinExamples != 0 && c.Detection.MinExamples < 2 {
		return errors.NewInvalidConfigError("detection.min_examples must be >= 2, got %d", c.Detection.MinExamples)
	}

	if c.Validator.MaxCyclomatic < 0 || c.Validator.MaxFunctionLines < 0 || c.Validator.MaxFileLines < 0 {
		return errors.NewInvalidConfigError("validator thresholds must be >= 0 (0 uses the default)")
	}
	if c.Validator.MethodParams < 0 || c.Validator.MethodResults < 0 {
		return errors.NewInvalidConfigError("validator method arity must be >= 0")
	}

	if c.Batch.Workers < 0 {
		return errors.NewInvalidConfigError("batch.workers must be >= 0, got %d", c.Batch.Workers)
	}
	if c.Batch.MemoryWarnPercent < 0 || c.Batch.MemoryWarnPercent > 100 {
		return errors.NewInvalidConfigError("batch.memory_warn_percent must be within 0..100, got %f", c.Batch.MemoryWarnPercent)
	}

	return nil
}
