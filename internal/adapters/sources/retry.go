package sources

import (
	"context"
	"io"
	"time"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/time/rate"
)

// Retrying wraps a backend with rate limiting and bounded retries of
// transient failures. NotFound is returned immediately.
type Retrying struct {
	inner   ports.SourceBackend
	policy  domain.RetryPolicy
	limiter *rate.Limiter
	logger  ports.Logger
	metrics ports.Metrics
}

// NewRetrying decorates inner. A nil limiter disables rate limiting.
func NewRetrying(
	inner ports.SourceBackend,
	policy domain.RetryPolicy,
	limiter *rate.Limiter,
	logger ports.Logger,
	metrics ports.Metrics,
) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrying{inner: inner, policy: policy, limiter: limiter, logger: logger, metrics: metrics}
}

// limiterFor builds the token bucket of cfg, or nil when unlimited.
func limiterFor(cfg domain.SourceConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
}

// ID implements ports.SourceBackend.
func (r *Retrying) ID() string { return r.inner.ID() }

// Fetch implements ports.SourceBackend.
func (r *Retrying) Fetch(ctx context.Context, objPath string) (io.ReadCloser, error) {
	return withRetry(ctx, r, objPath, func(ctx context.Context) (io.ReadCloser, error) {
		return r.inner.Fetch(ctx, objPath)
	})
}

// Exists implements ports.SourceBackend.
func (r *Retrying) Exists(ctx context.Context, objPath string) (bool, error) {
	return withRetry(ctx, r, objPath, func(ctx context.Context) (bool, error) {
		return r.inner.Exists(ctx, objPath)
	})
}

// Close closes the wrapped backend when it holds resources.
func (r *Retrying) Close() error {
	return closeBackend(r.inner)
}

func withRetry[T any](ctx context.Context, r *Retrying, objPath string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				err = zerr.Wrap(err, domain.ErrSourceThrottled.Error())
				return zero, domain.Transient(annotate(err, r.inner.ID(), objPath))
			}
		}

		start := time.Now()
		v, err := call(ctx)
		r.metrics.SourceFetch(r.inner.ID(), time.Since(start), err)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		retry, delay := r.policy.Next(domain.KindOf(err), attempt)
		if !retry {
			return zero, err
		}
		r.logger.Warn("retrying source request",
			"source", r.inner.ID(),
			"path", objPath,
			"attempt", attempt,
			"delay", delay,
		)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func closeBackend(b ports.SourceBackend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
