package chi

import (
	"context"

	"github.com/kailas-cloud/nerprompt/internal/dataset"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	dombatch "github.com/kailas-cloud/nerprompt/internal/domain/batch"
	collectionuc "github.com/kailas-cloud/nerprompt/internal/usecase/collection"
	healthuc "github.com/kailas-cloud/nerprompt/internal/usecase/health"
	"github.com/kailas-cloud/nerprompt/internal/usecase/ingestion"
	"github.com/kailas-cloud/nerprompt/internal/usecase/instruction"
)

// InstructionBuilder answers a single query.
type InstructionBuilder interface {
	Build(ctx context.Context, q domain.Query, withDetails bool) (instruction.Output, error)
}

// BatchRunner answers many queries with per-item results.
type BatchRunner interface {
	Run(ctx context.Context, queries []domain.Query, withDetails bool) []dombatch.Result[instruction.Output]
}

// Ingester writes entity and sentence documents.
type Ingester interface {
	IngestEntities(ctx context.Context, doc dataset.Entities, progress ingestion.ProgressFunc) ([]ingestion.Report, error)
	IngestSentences(ctx context.Context, doc dataset.Sentences, progress ingestion.ProgressFunc) ([]ingestion.Report, error)
}

// CollectionAdmin reports on and drops collections.
type CollectionAdmin interface {
	Stats(ctx context.Context, languages []domain.Language) (collectionuc.Stats, error)
	Cleanup(ctx context.Context, languages []domain.Language) (collectionuc.CleanupReport, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
