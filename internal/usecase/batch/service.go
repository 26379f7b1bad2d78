package batch

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/nerprompt/internal/domain"
	dombatch "github.com/kailas-cloud/nerprompt/internal/domain/batch"
	"github.com/kailas-cloud/nerprompt/internal/usecase/instruction"
)

// Defaults for zero Config fields.
const (
	MaxBatchSize       = 100
	DefaultConcurrency = 4
	DefaultInputField  = "input"
)

// Config tunes batch processing.
type Config struct {
	MaxBatchSize    int
	Concurrency     int             // queries answered in parallel
	DefaultLanguage domain.Language // for files whose name carries no language code
	IncludeMetadata bool            // attach retrieval details to enhanced lines
}

// Service answers many queries with per-item error reporting.
type Service struct {
	builder Builder
	cfg     Config
	logger  *zap.Logger
}

// New creates a batch service.
func New(b Builder, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = MaxBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = domain.LangEN
	}
	return &Service{builder: b, cfg: cfg, logger: logger}
}

// Run answers every query. Item IDs are the query positions; a failed query
// never aborts the others.
func (s *Service) Run(
	ctx context.Context, queries []domain.Query, withDetails bool,
) []dombatch.Result[instruction.Output] {
	results := make([]dombatch.Result[instruction.Output], len(queries))

	if len(queries) > s.cfg.MaxBatchSize {
		for i := range queries {
			results[i] = dombatch.NewError[instruction.Output](
				strconv.Itoa(i),
				fmt.Errorf("%w: batch size exceeds %d", domain.ErrInvalidInput, s.cfg.MaxBatchSize),
			)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			id := strconv.Itoa(i)
			out, err := s.builder.Build(ctx, q, withDetails)
			if err != nil {
				results[i] = dombatch.NewError[instruction.Output](id, err)
				return nil
			}
			results[i] = dombatch.NewOK(id, out)
			return nil
		})
	}
	_ = g.Wait()

	ok, failed := dombatch.Count(results)
	s.logger.Info("Batch processed",
		zap.Int("queries", len(queries)),
		zap.Int("succeeded", ok),
		zap.Int("failed", failed),
	)
	return results
}
