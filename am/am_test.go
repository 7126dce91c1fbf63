package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/exemplar/errors"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "auto", cfg.Backend.Provider)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, 3, cfg.Generation.CallRetries)
	assert.Equal(t, time.Second, cfg.BackoffBase())
	assert.Equal(t, 30*time.Second, cfg.BackoffMax())
	assert.Equal(t, 120*time.Second, cfg.BackendTimeout())
	assert.Equal(t, 5, cfg.Detection.SampleLimit)
	assert.Equal(t, 10, cfg.Detection.MaxMappingValues)
	assert.Equal(t, "Transformer", cfg.Validator.InterfaceName)
	assert.Equal(t, 10, cfg.Validator.MaxCyclomatic)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.Equal(t, "exemplar.db", cfg.GetDatabasePath())
	require.NotNil(t, cfg.Backend.Anthropic.MaxTokens)
	assert.Equal(t, 8192, *cfg.Backend.Anthropic.MaxTokens)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "zero attempts", mutate: func(c *Config) { c.Generation.MaxAttempts = 0 }, wantErr: true},
		{name: "zero call retries", mutate: func(c *Config) { c.Generation.CallRetries = 0 }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.Backend.Provider = "mystery" }, wantErr: true},
		{name: "provider alias", mutate: func(c *Config) { c.Backend.Provider = "claude" }},
		{name: "negative workers", mutate: func(c *Config) { c.Batch.Workers = -1 }, wantErr: true},
		{name: "zero workers means default", mutate: func(c *Config) { c.Batch.Workers = 0 }},
		{name: "backoff base above cap", mutate: func(c *Config) { c.Generation.BackoffBaseMS = 60000 }, wantErr: true},
		{name: "single example minimum", mutate: func(c *Config) { c.Detection.MinExamples = 1 }, wantErr: true},
		{name: "local without url", mutate: func(c *Config) {
			c.Backend.Local.Enabled = true
			c.Backend.Local.BaseURL = ""
		}, wantErr: true},
		{name: "memory percent over 100", mutate: func(c *Config) { c.Batch.MemoryWarnPercent = 120 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	content := `
[generation]
max_attempts = 5

[validator]
max_cyclomatic = 15
denied_imports = ["reflect"]

[backend]
provider = "openrouter"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Generation.MaxAttempts)
	assert.Equal(t, 15, cfg.Validator.MaxCyclomatic)
	assert.Equal(t, []string{"reflect"}, cfg.Validator.DeniedImports)
	assert.Equal(t, "openrouter", cfg.Backend.Provider)
	// Untouched sections keep defaults
	assert.Equal(t, 60, cfg.Validator.MaxFunctionLines)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[generation]\nmax_attempts = 0\n"), 0644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "am.toml")

	require.NoError(t, WriteDefault(path, false))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)

	// Refuses to clobber without force
	err = WriteDefault(path, false)
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))

	// Force rotates the previous file into a backup
	require.NoError(t, os.WriteFile(path, []byte("# hand edited\n"), 0644))
	require.NoError(t, WriteDefault(path, true))

	backup, err := os.ReadFile(path + ".back1")
	require.NoError(t, err)
	assert.Equal(t, "# hand edited\n", string(backup))

	settings, err := ReadSettings(path)
	require.NoError(t, err)
	assert.Contains(t, settings, "generation")
}

func TestCreateBackupRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")

	for _, content := range []string{"one", "two", "three", "four"} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		require.NoError(t, createBackup(path))
	}

	read := func(suffix string) string {
		data, err := os.ReadFile(path + suffix)
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, "four", read(".back1"))
	assert.Equal(t, "three", read(".back2"))
	assert.Equal(t, "two", read(".back3"))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", maskKey("short"))
	assert.Equal(t, "sk-o****7890", maskKey("sk-or-v1-abcdef1234567890"))
}

func TestSettings_MasksKeys(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-0123456789abcdef")

	settings := Settings()
	backend := settings["backend"].(map[string]interface{})
	anthropic := backend["anthropic"].(map[string]interface{})
	assert.Equal(t, "sk-a****cdef", anthropic["api_key"])
}
