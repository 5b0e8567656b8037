package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	providers       = []string{"ollama", "openai", "anthropic", "gemini"}
	extractors      = []string{"heuristic", "strict"}
	formats         = []string{"json", "yaml", "xlsx"}
	templateSources = []string{"file", "notion"}
	drivers         = []string{"sqlite", "postgres"}
)

// Validate checks the settings needed by a command mode: "analyze", "chunk",
// "runs" or "serve". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "analyze":
		errs = append(errs, c.validateGeneration()...)
		errs = append(errs, c.validateAnalysis()...)
		errs = append(errs, c.validatePipeline()...)
		errs = append(errs, c.validateInput()...)
		errs = append(errs, c.validateOutput()...)
		errs = append(errs, c.validateStore()...)
	case "chunk":
		errs = append(errs, c.validatePipeline()...)
		if c.Input.SamplePath == "" {
			errs = append(errs, "input.sample_path is required")
		}
	case "runs":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateGeneration()...)
		errs = append(errs, c.validateAnalysis()...)
		errs = append(errs, c.validatePipeline()...)
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		errs = append(errs, c.validateMonitoring()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateGeneration() []string {
	var errs []string
	g := c.Generation
	if !slices.Contains(providers, g.Provider) {
		errs = append(errs, fmt.Sprintf("generation.provider must be one of %s", strings.Join(providers, ", ")))
	}
	if g.Model == "" {
		errs = append(errs, "generation.model is required")
	}
	switch g.Provider {
	case "anthropic":
		if g.Anthropic.Key == "" {
			errs = append(errs, "generation.anthropic.key is required")
		}
	case "gemini":
		if g.Gemini.Key == "" {
			errs = append(errs, "generation.gemini.key is required")
		}
	case "openai":
		if g.OpenAI.Key == "" && g.BaseURL == "" {
			errs = append(errs, "generation.openai.key or generation.base_url is required")
		}
	}
	if g.RequestsPerSecond < 0 {
		errs = append(errs, "generation.requests_per_second must be >= 0")
	}
	if g.Temperature < 0 || g.Temperature > 1 {
		errs = append(errs, "generation.temperature must be between 0 and 1")
	}
	if g.CircuitBreaker.Enabled && g.CircuitBreaker.FailureThreshold <= 0 {
		errs = append(errs, "generation.circuit_breaker.failure_threshold must be > 0")
	}
	return errs
}

func (c *Config) validateAnalysis() []string {
	var errs []string
	a := c.Analysis
	if a.MaxAttempts < 1 || a.MaxAttempts > 20 {
		errs = append(errs, "analysis.max_attempts must be between 1 and 20")
	}
	if a.RetryBackoffMs < 0 {
		errs = append(errs, "analysis.retry_backoff_ms must be >= 0")
	}
	if !slices.Contains(extractors, a.Extractor) {
		errs = append(errs, fmt.Sprintf("analysis.extractor must be one of %s", strings.Join(extractors, ", ")))
	}
	if a.CacheSize < 0 {
		errs = append(errs, "analysis.cache_size must be >= 0")
	}
	return errs
}

func (c *Config) validatePipeline() []string {
	var errs []string
	if c.Pipeline.MaxChunkBytes <= 0 {
		errs = append(errs, "pipeline.max_chunk_bytes must be > 0")
	}
	if c.Pipeline.PostWorkers < 1 || c.Pipeline.PostWorkers > 64 {
		errs = append(errs, "pipeline.post_workers must be between 1 and 64")
	}
	return errs
}

func (c *Config) validateInput() []string {
	var errs []string
	if c.Input.SamplePath == "" {
		errs = append(errs, "input.sample_path is required")
	}
	if !slices.Contains(templateSources, c.Input.TemplateSource) {
		errs = append(errs, fmt.Sprintf("input.template_source must be one of %s", strings.Join(templateSources, ", ")))
	}
	switch c.Input.TemplateSource {
	case "file":
		if c.Input.TemplatePath == "" {
			errs = append(errs, "input.template_path is required")
		}
	case "notion":
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.TemplateDB == "" {
			errs = append(errs, "notion.template_db is required")
		}
	}
	return errs
}

func (c *Config) validateOutput() []string {
	var errs []string
	if c.Output.Path == "" {
		errs = append(errs, "output.path is required")
	}
	if !slices.Contains(formats, c.Output.Format) {
		errs = append(errs, fmt.Sprintf("output.format must be one of %s", strings.Join(formats, ", ")))
	}
	return errs
}

func (c *Config) validateStore() []string {
	var errs []string
	if !slices.Contains(drivers, c.Store.Driver) {
		errs = append(errs, fmt.Sprintf("store.driver must be one of %s", strings.Join(drivers, ", ")))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) validateMonitoring() []string {
	m := c.Monitoring
	if !m.Enabled {
		return nil
	}
	var errs []string
	if m.LookbackWindowHours <= 0 {
		errs = append(errs, "monitoring.lookback_window_hours must be > 0")
	}
	if m.FailureRateThreshold < 0 || m.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}
	if m.ExhaustionRateThreshold < 0 || m.ExhaustionRateThreshold > 1 {
		errs = append(errs, "monitoring.exhaustion_rate_threshold must be between 0 and 1")
	}
	return errs
}
