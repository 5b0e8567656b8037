package anthropic

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/sells-group/thread-annotator/internal/generate"
)

const provider = "anthropic"

// DefaultMaxTokens bounds a single field answer.
const DefaultMaxTokens = 1024

// DefaultSystem is the fixed instruction sent ahead of every rendered prompt.
// It is identical across calls so it is marked for prompt caching.
const DefaultSystem = "You annotate posts from online discussion threads. " +
	"Answer with a single JSON object holding exactly the requested field and no other text."

// Config configures a Generator.
type Config struct {
	Model     string
	MaxTokens int64 // non-positive uses DefaultMaxTokens
	System    string
	// Temperature is sent on every request when set.
	Temperature *float64
}

// Generator adapts a Client to generate.Client. The rendered prompt is the
// user message; the system instruction is a cached system block.
type Generator struct {
	client Client
	cfg    Config
}

// NewGenerator creates a Generator. An empty System uses DefaultSystem.
func NewGenerator(client Client, cfg Config) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.System == "" {
		cfg.System = DefaultSystem
	}
	return &Generator{client: client, cfg: cfg}
}

// Generate implements generate.Client.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Complete(ctx, Request{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		System:      g.cfg.System,
		CacheSystem: true,
		Prompt:      prompt,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return "", &generate.ServiceError{Provider: provider, Status: apiErr.StatusCode, Message: apiErr.Error()}
		}
		return "", &generate.TransportError{Provider: provider, Err: err}
	}
	resp.Usage.log(g.cfg.Model)
	if resp.StopReason == "refusal" {
		return "", &generate.ServiceError{Provider: provider, Message: "refusal"}
	}
	return generate.NonEmpty(resp.Text)
}
