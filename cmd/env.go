package main

import (
	"context"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/thread-annotator/internal/analysis"
	"github.com/sells-group/thread-annotator/internal/config"
	"github.com/sells-group/thread-annotator/internal/extract"
	"github.com/sells-group/thread-annotator/internal/generate"
	"github.com/sells-group/thread-annotator/internal/model"
	"github.com/sells-group/thread-annotator/internal/pipeline"
	"github.com/sells-group/thread-annotator/internal/resilience"
	"github.com/sells-group/thread-annotator/internal/store"
	"github.com/sells-group/thread-annotator/pkg/anthropic"
	"github.com/sells-group/thread-annotator/pkg/gemini"
	"github.com/sells-group/thread-annotator/pkg/notion"
	"github.com/sells-group/thread-annotator/pkg/ollama"
	"github.com/sells-group/thread-annotator/pkg/openai"
)

// initStore opens and migrates the configured run store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// newGenerator builds the configured provider wrapped in logging, rate
// limiting and the optional circuit breaker.
func newGenerator(ctx context.Context, g config.GenerationConfig) (generate.Client, error) {
	temp := g.Temperature
	var base generate.Client
	switch g.Provider {
	case "ollama":
		var opts []ollama.Option
		if g.Ollama.Binary != "" {
			opts = append(opts, ollama.WithBinary(g.Ollama.Binary))
		}
		base = ollama.NewClient(g.Model, opts...)
	case "openai":
		base = openai.NewClient(openai.Config{APIKey: g.OpenAI.Key, BaseURL: g.BaseURL, Model: g.Model, Temperature: &temp})
	case "anthropic":
		var opts []option.RequestOption
		if g.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(g.BaseURL))
		}
		base = anthropic.NewGenerator(anthropic.NewClient(g.Anthropic.Key, opts...), anthropic.Config{
			Model:       g.Model,
			MaxTokens:   g.MaxTokens,
			Temperature: &temp,
		})
	case "gemini":
		c, err := gemini.NewClient(ctx, gemini.Config{APIKey: g.Gemini.Key, BaseURL: g.BaseURL, Model: g.Model, Temperature: &temp})
		if err != nil {
			return nil, eris.Wrap(err, "init gemini")
		}
		base = c
	default:
		return nil, eris.Errorf("unsupported generation provider: %s", g.Provider)
	}

	var breaker *resilience.Breaker
	if g.CircuitBreaker.Enabled {
		breaker = resilience.NewBreaker(resilience.BreakerConfig{
			Name:             g.Provider,
			FailureThreshold: g.CircuitBreaker.FailureThreshold,
			Cooldown:         time.Duration(g.CircuitBreaker.CooldownSecs) * time.Second,
		})
	}

	return generate.Chain(base,
		generate.WithLogging(g.Provider, g.Model),
		generate.WithRateLimit(g.RequestsPerSecond),
		generate.WithBreaker(g.Provider, breaker),
	), nil
}

// analysisConfig maps the analysis section onto the orchestrator config.
func analysisConfig(c *config.Config) (analysis.Config, error) {
	a := c.Analysis
	ac := analysis.Config{
		Model:       c.Generation.Model,
		MaxAttempts: a.MaxAttempts,
		Backoff: resilience.Backoff{
			Initial:    time.Duration(a.RetryBackoffMs) * time.Millisecond,
			Max:        time.Duration(a.RetryBackoffMaxMs) * time.Millisecond,
			Multiplier: a.RetryMultiplier,
		},
		Extractor: extract.New(a.Extractor),
		CacheSize: a.CacheSize,
	}
	if a.PromptPath != "" {
		data, err := os.ReadFile(a.PromptPath)
		if err != nil {
			return analysis.Config{}, eris.Wrapf(err, "read prompt template %s", a.PromptPath)
		}
		ac.PromptTemplate = string(data)
	}
	return ac, nil
}

// loadTemplate reads the template from a file or a Notion database and
// returns it with a label recorded on the run.
func loadTemplate(ctx context.Context) (model.Template, string, error) {
	if cfg.Input.TemplateSource == "notion" {
		tmpl, err := notion.LoadTemplate(ctx, notion.NewClient(cfg.Notion.Token), cfg.Notion.TemplateDB)
		if err != nil {
			return model.Template{}, "", err
		}
		return tmpl, "notion:" + cfg.Notion.TemplateDB, nil
	}
	tmpl, err := pipeline.LoadTemplate(cfg.Input.TemplatePath)
	if err != nil {
		return model.Template{}, "", err
	}
	return tmpl, cfg.Input.TemplatePath, nil
}

// initPipeline builds the generator, orchestrator config and pipeline.
// outputPath may be empty to skip writing a file.
func initPipeline(ctx context.Context, st store.Store, outputPath string) (*pipeline.Pipeline, error) {
	gen, err := newGenerator(ctx, cfg.Generation)
	if err != nil {
		return nil, err
	}
	ac, err := analysisConfig(cfg)
	if err != nil {
		return nil, err
	}
	format, err := pipeline.ParseOutputFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	return pipeline.New(gen, ac, st, pipeline.Options{
		MaxChunkBytes: cfg.Pipeline.MaxChunkBytes,
		PostWorkers:   cfg.Pipeline.PostWorkers,
		OutputPath:    outputPath,
		OutputFormat:  format,
		Provider:      cfg.Generation.Provider,
	})
}
