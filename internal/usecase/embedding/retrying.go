package embedding

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/metrics"
)

// RetryConfig controls provider retries.
type RetryConfig struct {
	MaxRetries uint64
	Base       time.Duration
	Max        time.Duration
	Jitter     time.Duration
}

// Retryable reports whether a provider error is worth another attempt.
type Retryable func(err error) bool

// RetryingEmbedder retries transient provider failures with exponential backoff.
type RetryingEmbedder struct {
	inner     domain.Embedder
	cfg       RetryConfig
	retryable Retryable
	provider  string
	logger    *zap.Logger
}

// NewRetryingEmbedder wraps inner. Errors rejected by retryable are returned immediately.
func NewRetryingEmbedder(
	inner domain.Embedder, cfg RetryConfig, retryable Retryable,
	provider string, logger *zap.Logger,
) *RetryingEmbedder {
	if cfg.Base <= 0 {
		cfg.Base = 200 * time.Millisecond
	}
	return &RetryingEmbedder{
		inner:     inner,
		cfg:       cfg,
		retryable: retryable,
		provider:  provider,
		logger:    logger,
	}
}

func (r *RetryingEmbedder) backoff() retry.Backoff {
	b := retry.NewExponential(r.cfg.Base)
	if r.cfg.Max > 0 {
		b = retry.WithCappedDuration(r.cfg.Max, b)
	}
	if r.cfg.Jitter > 0 {
		b = retry.WithJitter(r.cfg.Jitter, b)
	}
	return retry.WithMaxRetries(r.cfg.MaxRetries, b)
}

// Embed implements domain.Embedder.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var res domain.EmbeddingResult
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.inner.Embed(ctx, text)
		return err
	})
	return res, err
}

// BatchEmbed implements domain.BatchEmbedder. The whole batch is retried.
func (r *RetryingEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var res domain.BatchEmbeddingResult
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		res, err = domain.EmbedBatch(ctx, r.inner, texts)
		return err
	})
	return res, err
}

// HealthCheck delegates without retries.
func (r *RetryingEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := r.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (r *RetryingEmbedder) do(ctx context.Context, fn func(context.Context) error) error {
	attempt := 0
	//nolint:wrapcheck // inner errors pass through unchanged
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if r.retryable != nil && r.retryable(err) {
			metrics.EmbeddingRetriesTotal.WithLabelValues(r.provider).Inc()
			r.logger.Warn("Retrying embedding request",
				zap.String("provider", r.provider),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
}
