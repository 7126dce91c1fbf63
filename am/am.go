// Package am ("as me") holds exemplar's runtime configuration.
//
// Values come from built-in defaults, then ~/.exemplar/am.toml, then the
// nearest am.toml walking up from the working directory, then EXEMPLAR_*
// environment variables.
package am

import "time"

// Config represents the exemplar configuration
type Config struct {
	Backend    BackendConfig    `mapstructure:"backend"`
	Generation GenerationConfig `mapstructure:"generation"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Validator  ValidatorConfig  `mapstructure:"validator"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Artifacts  ArtifactsConfig  `mapstructure:"artifacts"`
	Database   DatabaseConfig   `mapstructure:"database"`
}

// BackendConfig selects and tunes the code-generation backend
type BackendConfig struct {
	Provider          string           `mapstructure:"provider"`            // anthropic, openrouter, local, auto
	TimeoutSeconds    int              `mapstructure:"timeout_seconds"`     // Per-call timeout
	RequestsPerMinute int              `mapstructure:"requests_per_minute"` // 0 = unpaced
	Anthropic         AnthropicConfig  `mapstructure:"anthropic"`
	OpenRouter        OpenRouterConfig `mapstructure:"openrouter"`
	Local             LocalConfig      `mapstructure:"local"`
}

// AnthropicConfig configures direct Anthropic API access
type AnthropicConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`       // nil-safe: empty = client default
	Temperature *float64 `mapstructure:"temperature"` // nil = default 0.2
	MaxTokens   *int     `mapstructure:"max_tokens"`  // nil = default 8192
	BaseURL     string   `mapstructure:"base_url"`    // Override for proxies and tests
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	Temperature *float64 `mapstructure:"temperature"`
	MaxTokens   *int     `mapstructure:"max_tokens"`
	BaseURL     string   `mapstructure:"base_url"`
}

// LocalConfig configures an OpenAI-compatible local server (Ollama, LocalAI)
type LocalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"` // e.g. "http://localhost:11434"
	Model   string `mapstructure:"model"`    // e.g. "qwen2.5-coder:7b"
}

// GenerationConfig bounds the repair loop and the backend retry policy
type GenerationConfig struct {
	MaxAttempts   int `mapstructure:"max_attempts"`    // Plan+implement+validate cycles (default 3)
	CallRetries   int `mapstructure:"call_retries"`    // Tries per backend call for transient failures (default 3)
	BackoffBaseMS int `mapstructure:"backoff_base_ms"` // First retry delay (default 1000)
	BackoffMaxMS  int `mapstructure:"backoff_max_ms"`  // Retry delay cap (default 30000)
}

// DetectionConfig bounds schema sampling and value-mapping search
type DetectionConfig struct {
	SampleLimit      int `mapstructure:"sample_limit"`       // Samples kept per path (default 5)
	MixedSampleLimit int `mapstructure:"mixed_sample_limit"` // Distinct raw values kept for mixed paths (default 20)
	MaxMappingValues int `mapstructure:"max_mapping_values"` // Largest discrete value mapping (default 10)
	MinExamples      int `mapstructure:"min_examples"`       // Usable examples required (default 2)
}

// ValidatorConfig configures the generated-code checks
type ValidatorConfig struct {
	InterfaceName            string   `mapstructure:"interface_name"` // Required capability (default "Transformer")
	MethodName               string   `mapstructure:"method_name"`    // Required method (default "Transform")
	MethodParams             int      `mapstructure:"method_params"`  // Required arity (default 2: ctx, input)
	MethodResults            int      `mapstructure:"method_results"` // Required results (default 2: output, error)
	MaxCyclomatic            int      `mapstructure:"max_cyclomatic"`
	MaxFunctionLines         int      `mapstructure:"max_function_lines"`
	MaxFileLines             int      `mapstructure:"max_file_lines"`
	DeniedImports            []string `mapstructure:"denied_imports"`  // Added to the built-in denylist
	AllowedImports           []string `mapstructure:"allowed_imports"` // Removed from the built-in denylist
	CollaboratorConstructors []string `mapstructure:"collaborator_constructors"`
}

// BatchConfig configures multi-project runs
type BatchConfig struct {
	Workers           int     `mapstructure:"workers"`             // Concurrent projects (default 4)
	MemoryWarnPercent float64 `mapstructure:"memory_warn_percent"` // Warn when system memory use exceeds this
}

// ArtifactsConfig configures how generated files are persisted
type ArtifactsConfig struct {
	OutputDir        string `mapstructure:"output_dir"`         // Used when a project names none
	BackupTimeFormat string `mapstructure:"backup_time_format"` // Go layout for backup suffixes
	GitCheckpoint    bool   `mapstructure:"git_checkpoint"`     // Commit written artifacts when inside a work tree
	AuthorName       string `mapstructure:"author_name"`
	AuthorEmail      string `mapstructure:"author_email"`
}

// DatabaseConfig configures the usage-metrics SQLite database
type DatabaseConfig struct {
	Path       string `mapstructure:"path"`
	TrackUsage bool   `mapstructure:"track_usage"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// BackendTimeout returns the per-call backend timeout
func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// BackoffBase returns the first retry delay
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Generation.BackoffBaseMS) * time.Millisecond
}

// BackoffMax returns the retry delay cap
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Generation.BackoffMaxMS) * time.Millisecond
}
