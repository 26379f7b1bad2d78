package instruction

import (
	"context"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// Retriever produces the retrieval result for one query.
type Retriever interface {
	Retrieve(ctx context.Context, q domain.Query) (domain.RetrievalResult, error)
}
