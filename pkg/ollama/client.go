// Package ollama runs prompts through a locally installed ollama binary.
package ollama

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/thread-annotator/internal/generate"
)

const (
	provider = "ollama"

	// DefaultBinary is looked up on PATH.
	DefaultBinary = "ollama"
	// DefaultModel is the model passed to `ollama run`.
	DefaultModel = "mistral"
)

// Client invokes `ollama run <model>` once per prompt, writing the prompt to
// stdin and reading the full response from stdout.
type Client struct {
	binary string
	model  string
}

// Option configures a Client.
type Option func(*Client)

// WithBinary overrides the executable path.
func WithBinary(path string) Option {
	return func(c *Client) { c.binary = path }
}

// NewClient creates a Client for model.
func NewClient(model string, opts ...Option) *Client {
	if model == "" {
		model = DefaultModel
	}
	c := &Client{binary: DefaultBinary, model: model}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate implements generate.Client.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, "run", c.model)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", &generate.TransportError{Provider: provider, Err: ctx.Err()}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &generate.ServiceError{
				Provider: provider,
				Status:   exitErr.ExitCode(),
				Message:  strings.TrimSpace(stderr.String()),
			}
		}
		return "", &generate.TransportError{Provider: provider, Err: eris.Wrap(err, "ollama: start")}
	}

	return generate.NonEmpty(stdout.String())
}
