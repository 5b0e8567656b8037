package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves the test into an empty directory so no config.yaml or
// .env is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Generation.Provider)
	assert.Equal(t, "mistral", cfg.Generation.Model)
	assert.Equal(t, "ollama", cfg.Generation.Ollama.Binary)
	assert.Equal(t, int64(1024), cfg.Generation.MaxTokens)
	assert.Zero(t, cfg.Generation.Temperature)
	assert.Zero(t, cfg.Generation.RequestsPerSecond)
	assert.False(t, cfg.Generation.CircuitBreaker.Enabled)
	assert.Equal(t, 3, cfg.Analysis.MaxAttempts)
	assert.Equal(t, 0, cfg.Analysis.RetryBackoffMs)
	assert.Equal(t, "heuristic", cfg.Analysis.Extractor)
	assert.Equal(t, 12000, cfg.Pipeline.MaxChunkBytes)
	assert.Equal(t, 1, cfg.Pipeline.PostWorkers)
	assert.Equal(t, "test_sample.json", cfg.Input.SamplePath)
	assert.Equal(t, "template.json", cfg.Input.TemplatePath)
	assert.Equal(t, "file", cfg.Input.TemplateSource)
	assert.Equal(t, "final_analysis.json", cfg.Output.Path)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBodyBytes)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 1e-9)
	assert.InDelta(t, 0.5, cfg.Monitoring.ExhaustionRateThreshold, 1e-9)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
generation:
  provider: openai
  model: llama3
  base_url: http://localhost:11434/v1
analysis:
  max_attempts: 5
  extractor: strict
pipeline:
  post_workers: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Generation.Provider)
	assert.Equal(t, "llama3", cfg.Generation.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Generation.BaseURL)
	assert.Equal(t, 5, cfg.Analysis.MaxAttempts)
	assert.Equal(t, "strict", cfg.Analysis.Extractor)
	assert.Equal(t, 4, cfg.Pipeline.PostWorkers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 12000, cfg.Pipeline.MaxChunkBytes)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ANNOTATOR_STORE_DRIVER", "sqlite")
	t.Setenv("ANNOTATOR_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOnlySecret(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ANNOTATOR_GENERATION_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.Generation.Anthropic.Key)
}

func TestLoadEnvTemperature(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ANNOTATOR_GENERATION_TEMPERATURE", "0.3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 0.3, cfg.Generation.Temperature, 1e-9)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ANNOTATOR_PIPELINE_MAX_CHUNK_BYTES=4000\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("ANNOTATOR_PIPELINE_MAX_CHUNK_BYTES") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Pipeline.MaxChunkBytes)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
