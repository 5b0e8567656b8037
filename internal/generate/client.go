// Package generate defines the contract for the external text generation
// service and the middleware wrapped around every provider.
package generate

import (
	"context"
)

// Client sends one rendered prompt and returns the complete response text.
// A call that does not produce usable text returns a *ServiceError,
// a *TransportError or ErrEmptyResponse.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to Client.
type Func func(ctx context.Context, prompt string) (string, error)

// Generate implements Client.
func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Middleware decorates a Client.
type Middleware func(Client) Client

// Chain wraps c with mws; the first middleware is the outermost.
func Chain(c Client, mws ...Middleware) Client {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			c = mws[i](c)
		}
	}
	return c
}
