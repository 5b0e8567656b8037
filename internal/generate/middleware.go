package generate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/thread-annotator/internal/resilience"
)

// WithRateLimit throttles calls to rps requests per second. A non-positive
// rps disables throttling.
func WithRateLimit(rps float64) Middleware {
	if rps <= 0 {
		return nil
	}
	limiter := rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	return func(next Client) Client {
		return Func(func(ctx context.Context, prompt string) (string, error) {
			if err := limiter.Wait(ctx); err != nil {
				return "", eris.Wrap(err, "generate: rate limit")
			}
			return next.Generate(ctx, prompt)
		})
	}
}

// WithBreaker routes calls through b. Calls rejected by an open breaker fail
// with a *ServiceError wrapping resilience.ErrBreakerOpen.
func WithBreaker(provider string, b *resilience.Breaker) Middleware {
	if b == nil {
		return nil
	}
	return func(next Client) Client {
		return Func(func(ctx context.Context, prompt string) (string, error) {
			text, err := resilience.Do(ctx, b, func(ctx context.Context) (string, error) {
				return next.Generate(ctx, prompt)
			})
			if eris.Is(err, resilience.ErrBreakerOpen) {
				return "", &ServiceError{Provider: provider, Message: err.Error()}
			}
			return text, err
		})
	}
}

// WithLogging logs each call's size, latency and failure kind at debug level.
func WithLogging(provider, model string) Middleware {
	return func(next Client) Client {
		return Func(func(ctx context.Context, prompt string) (string, error) {
			start := time.Now()
			text, err := next.Generate(ctx, prompt)
			fields := []zap.Field{
				zap.String("provider", provider),
				zap.String("model", model),
				zap.Int("prompt_bytes", len(prompt)),
				zap.Int("response_bytes", len(text)),
				zap.Duration("elapsed", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, zap.String("kind", Kind(err)), zap.Error(err))
			}
			zap.L().Debug("generate: call", fields...)
			return text, err
		})
	}
}
