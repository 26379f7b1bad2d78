package ingestion

import (
	"context"

	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/repository/collection"
)

// Collections creates or opens the target collections.
type Collections interface {
	Ensure(ctx context.Context, c domain.Collection) (collection.Handle, error)
}

// Records appends records to a collection.
type Records interface {
	InsertEntities(ctx context.Context, h collection.Handle, recs []domain.EntityRecord) (domain.InsertReport, error)
	InsertSentences(ctx context.Context, h collection.Handle, recs []domain.SentenceRecord) (domain.InsertReport, error)
}
