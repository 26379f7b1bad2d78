package retrieval

import (
	"context"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// Searcher runs nearest-neighbour searches over reference collections.
type Searcher interface {
	SearchEntities(
		ctx context.Context, c domain.Collection, vector []float32, k int, t domain.EntityType,
	) ([]domain.EntityHit, error)
	SearchSentences(
		ctx context.Context, c domain.Collection, vector []float32, k int,
	) ([]domain.SentenceHit, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
