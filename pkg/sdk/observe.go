package nerprompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	tokens     *prometheus.CounterVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nerprompt",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "Total SDK operations by type and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nerprompt",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		}, []string{"operation"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nerprompt",
			Subsystem: "sdk",
			Name:      "embedding_tokens_total",
			Help:      "Embedding tokens consumed by SDK operations.",
		}, []string{"operation"}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.tokens); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("nerprompt: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("nerprompt: register metric: %w", err)
	}
	return nil
}

// observer provides logging and metrics for SDK operations.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

// start opens an operation. The returned context collects embedding usage.
func (o *observer) start(ctx context.Context, op string) (context.Context, *operation) {
	ctx, usage := domain.NewContextWithUsage(ctx)
	return ctx, &operation{obs: o, name: op, start: time.Now(), usage: usage}
}

type operation struct {
	obs   *observer
	name  string
	start time.Time
	usage *domain.EmbeddingUsage
}

// end records the outcome. attrs are added to the log line.
func (op *operation) end(err error, attrs ...slog.Attr) {
	o := op.obs
	if o == nil {
		return
	}
	dur := time.Since(op.start)
	tokens, _ := op.usage.Snapshot()

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.operations.WithLabelValues(op.name, status).Inc()
		o.metrics.duration.WithLabelValues(op.name).Observe(dur.Seconds())
		if tokens > 0 {
			o.metrics.tokens.WithLabelValues(op.name).Add(float64(tokens))
		}
	}

	if o.logger == nil {
		return
	}
	attrs = append(attrs,
		slog.String("op", op.name),
		slog.Duration("duration", dur),
		slog.Int("embedding_tokens", tokens),
	)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		o.logger.LogAttrs(context.Background(), slog.LevelWarn, "operation failed", attrs...)
		return
	}
	o.logger.LogAttrs(context.Background(), slog.LevelDebug, "operation completed", attrs...)
}
