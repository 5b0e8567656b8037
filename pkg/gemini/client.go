// Package gemini generates text with Google's Gemini API.
package gemini

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/thread-annotator/internal/generate"
)

const provider = "gemini"

// Config holds connection settings.
type Config struct {
	APIKey  string
	BaseURL string // empty uses the public endpoint
	Model   string
	// Temperature is sent on every request when set.
	Temperature *float64
}

// Client implements generate.Client on top of genai.
type Client struct {
	cli   *genai.Client
	model string
	gen   *genai.GenerateContentConfig
}

// NewClient creates a Client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: new client")
	}
	c := &Client{cli: cli, model: cfg.Model}
	if cfg.Temperature != nil {
		c.gen = &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(*cfg.Temperature))}
	}
	return c, nil
}

// Generate implements generate.Client.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.cli.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.gen)
	if err != nil {
		return "", classify(err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &generate.ServiceError{Provider: provider, Message: "blocked: " + string(resp.PromptFeedback.BlockReason)}
	}
	return generate.NonEmpty(resp.Text())
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &generate.ServiceError{Provider: provider, Status: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &generate.ServiceError{Provider: provider, Status: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return &generate.TransportError{Provider: provider, Err: err}
}
