package embedder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/bububa/catalogue-rag/components"
)

// RetryConfig configures timeout, retry and pacing of embedding calls.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// RetryDelay is the initial backoff delay
	RetryDelay time.Duration
	// MaxDelay caps the exponential backoff
	MaxDelay time.Duration
	// Timeout bounds each attempt
	Timeout time.Duration
	// RequestsPerSecond paces requests, 0 disables pacing
	RequestsPerSecond float64
	// Burst is the limiter bucket size
	Burst int
}

// DefaultRetryConfig returns the configuration used when none is given
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		RetryDelay: time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// Retrying wraps an Embedder with per-attempt timeouts, exponential backoff
// and optional request pacing. Non-retryable failures return immediately.
type Retrying struct {
	inner   Embedder
	config  *RetryConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ Embedder = (*Retrying)(nil)

// NewRetrying wraps inner. A nil config uses DefaultRetryConfig.
func NewRetrying(inner Embedder, config *RetryConfig, logger *slog.Logger) *Retrying {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ret := &Retrying{
		inner:  inner,
		config: config,
		logger: logger,
	}
	if config.RequestsPerSecond > 0 {
		burst := max(config.Burst, 1)
		ret.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	return ret
}

func (r *Retrying) Provider() Provider {
	return r.inner.Provider()
}

func (r *Retrying) Model() string {
	return r.inner.Model()
}

func (r *Retrying) Embed(ctx context.Context, text string, embedding *Embedding, usage *components.LLMUsage) error {
	_, err := retry(ctx, r, 1, func(attemptCtx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.Embed(attemptCtx, text, embedding, usage)
	})
	return err
}

func (r *Retrying) BatchEmbed(ctx context.Context, parts []string, usage *components.LLMUsage) ([]Embedding, error) {
	return retry(ctx, r, len(parts), func(attemptCtx context.Context) ([]Embedding, error) {
		return r.inner.BatchEmbed(attemptCtx, parts, usage)
	})
}

func retry[T any](ctx context.Context, r *Retrying, size int, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.RetryDelay
	if r.config.MaxDelay > 0 {
		b.MaxInterval = r.config.MaxDelay
	}
	operation := func() (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return zero, backoff.Permanent(err)
			}
		}
		attemptCtx := ctx
		if r.config.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
			defer cancel()
		}
		ret, err := fn(attemptCtx)
		if err == nil {
			return ret, nil
		}
		err = NewServiceError(r.inner, size, 0, err)
		var svcErr *ServiceError
		if ctx.Err() != nil || (errors.As(err, &svcErr) && !svcErr.Retryable()) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.config.MaxRetries+1)),
		backoff.WithNotify(func(err error, d time.Duration) {
			r.logger.Warn("embedding request failed, retrying",
				slog.String("provider", r.inner.Provider()),
				slog.Int("texts", size),
				slog.Duration("backoff", d),
				slog.Any("error", err),
			)
		}),
	)
}
