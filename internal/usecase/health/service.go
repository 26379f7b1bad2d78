package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded means queries still work but a dependency is failing.
	Degraded Status = "degraded"
	// Unhealthy means the vector store is unreachable; nothing can be served.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names in Report.Checks.
const (
	ComponentStore     = "vector_store"
	ComponentEmbedding = "embedding"
)

// DefaultTimeout bounds each component check.
const DefaultTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
	Errors map[string]string      `json:"errors,omitempty"`
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
	timeout   time.Duration
}

// New creates a Service. embedding can be nil.
func New(store StorePinger, embedding EmbeddingChecker, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{store: store, embedding: embedding, timeout: timeout}
}

// Check runs the component checks concurrently.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{Checks: make(map[string]CheckResult)}
	var mu sync.Mutex
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			r.Checks[name] = CheckError
			if r.Errors == nil {
				r.Errors = make(map[string]string)
			}
			r.Errors[name] = err.Error()
			return
		}
		r.Checks[name] = CheckOK
	}

	var g errgroup.Group
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		record(ComponentStore, s.store.Ping(ctx))
		return nil
	})
	if s.embedding != nil {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			record(ComponentEmbedding, s.embedding.HealthCheck(ctx))
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case r.Checks[ComponentStore] == CheckError:
		r.Status = Unhealthy
	case r.Checks[ComponentEmbedding] == CheckError:
		r.Status = Degraded
	default:
		r.Status = Healthy
	}
	return r
}
