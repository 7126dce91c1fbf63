package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Backend defaults
	v.SetDefault("backend.provider", "auto")
	v.SetDefault("backend.timeout_seconds", 120)
	v.SetDefault("backend.requests_per_minute", 20)
	v.SetDefault("backend.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("backend.anthropic.temperature", 0.2)
	v.SetDefault("backend.anthropic.max_tokens", 8192)
	v.SetDefault("backend.openrouter.model", "anthropic/claude-sonnet-4")
	v.SetDefault("backend.openrouter.temperature", 0.2)
	v.SetDefault("backend.openrouter.max_tokens", 8192)
	v.SetDefault("backend.local.enabled", false)
	v.SetDefault("backend.local.base_url", "http://localhost:11434")
	v.SetDefault("backend.local.model", "qwen2.5-coder:7b")

	// Generation defaults
	v.SetDefault("generation.max_attempts", 3)
	v.SetDefault("generation.call_retries", 3)
	v.SetDefault("generation.backoff_base_ms", 1000)
	v.SetDefault("generation.backoff_max_ms", 30000)

	// Detection defaults
	v.SetDefault("detection.sample_limit", 5)
	v.SetDefault("detection.mixed_sample_limit", 20)
	v.SetDefault("detection.max_mapping_values", 10)
	v.SetDefault("detection.min_examples", 2)

	// Validator defaults
	v.SetDefault("validator.interface_name", "Transformer")
	v.SetDefault("validator.method_name", "Transform")
	v.SetDefault("validator.method_params", 2)
	v.SetDefault("validator.method_results", 2)
	v.SetDefault("validator.max_cyclomatic", 10)
	v.SetDefault("validator.max_function_lines", 60)
	v.SetDefault("validator.max_file_lines", 400)
	v.SetDefault("validator.denied_imports", []string{})
	v.SetDefault("validator.allowed_imports", []string{})
	v.SetDefault("validator.collaborator_constructors", []string{"sql.Open", "http.NewRequest", "zap.NewProduction", "zap.NewDevelopment"})

	// Batch defaults
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.memory_warn_percent", 90.0)

	// Artifact defaults
	v.SetDefault("artifacts.output_dir", "generated")
	v.SetDefault("artifacts.backup_time_format", "20060102T150405")
	v.SetDefault("artifacts.git_checkpoint", false)
	v.SetDefault("artifacts.author_name", "exemplar")
	v.SetDefault("artifacts.author_email", "exemplar@localhost")

	// Database defaults
	v.SetDefault("database.path", "exemplar.db")
	v.SetDefault("database.track_usage", true)
}

// BindSensitiveEnvVars explicitly binds credentials to their conventional environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("backend.anthropic.api_key", "EXEMPLAR_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("backend.openrouter.api_key", "EXEMPLAR_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("database.path", "EXEMPLAR_DATABASE_PATH")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "exemplar.db"
	}
	return c.Database.Path
}

// String returns a string representation of the config with credentials elided
func (c *Config) String() string {
	return fmt.Sprintf("Config{Backend: %s, MaxAttempts: %d, Workers: %d, Database: %s}",
		c.Backend.Provider, c.Generation.MaxAttempts, c.Batch.Workers, c.Database.Path)
}
