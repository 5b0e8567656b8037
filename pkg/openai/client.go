// Package openai generates text through any OpenAI-compatible chat
// completions endpoint, including a local Ollama server's /v1 API.
package openai

import (
	"context"
	"errors"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sells-group/thread-annotator/internal/generate"
)

const provider = "openai"

// Config holds connection settings.
type Config struct {
	APIKey  string
	BaseURL string // empty uses the public API
	Model   string
	// Temperature is sent on every request when set.
	Temperature *float64
}

// Client implements generate.Client with one user message per prompt.
type Client struct {
	client      sdk.Client
	model       string
	temperature *float64
}

// NewClient creates a Client. SDK-level retries are disabled; the analysis
// loop owns retry policy.
func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		// Local OpenAI-compatible servers ignore the key but the SDK requires one.
		opts = append(opts, option.WithAPIKey("unused"))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{client: sdk.NewClient(opts...), model: cfg.Model, temperature: cfg.Temperature}
}

// Generate implements generate.Client.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(c.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(prompt),
		},
	}
	if c.temperature != nil {
		params.Temperature = sdk.Float(*c.temperature)
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", generate.ErrEmptyResponse
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", &generate.ServiceError{Provider: provider, Message: "refusal: " + choice.Message.Refusal}
	}
	return generate.NonEmpty(choice.Message.Content)
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &generate.ServiceError{Provider: provider, Status: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return &generate.TransportError{Provider: provider, Err: err}
}
