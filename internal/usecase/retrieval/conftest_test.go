package retrieval

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// fakeSearcher implements Searcher with optional per-call overrides.
type fakeSearcher struct {
	entitiesFn  func(ctx context.Context, c domain.Collection, k int, t domain.EntityType) ([]domain.EntityHit, error)
	sentencesFn func(ctx context.Context, c domain.Collection, k int) ([]domain.SentenceHit, error)

	mu         sync.Mutex
	vectors    [][]float32
	typesAsked []domain.EntityType
}

func (f *fakeSearcher) SearchEntities(
	ctx context.Context, c domain.Collection, vector []float32, k int, t domain.EntityType,
) ([]domain.EntityHit, error) {
	f.mu.Lock()
	f.vectors = append(f.vectors, vector)
	f.typesAsked = append(f.typesAsked, t)
	f.mu.Unlock()
	if f.entitiesFn != nil {
		return f.entitiesFn(ctx, c, k, t)
	}
	return nil, nil
}

func (f *fakeSearcher) SearchSentences(
	ctx context.Context, c domain.Collection, vector []float32, k int,
) ([]domain.SentenceHit, error) {
	f.mu.Lock()
	f.vectors = append(f.vectors, vector)
	f.mu.Unlock()
	if f.sentencesFn != nil {
		return f.sentencesFn(ctx, c, k)
	}
	return nil, nil
}

// countingEmbedder returns a fixed vector and counts calls.
type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	e.calls.Add(1)
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}, nil
}

func newTestService(t *testing.T, cfg Config) (*Service, *fakeSearcher, *countingEmbedder) {
	t.Helper()
	fs := &fakeSearcher{}
	emb := &countingEmbedder{}
	return New(fs, emb, cfg, zap.NewNop()), fs, emb
}

func entityHits(t domain.EntityType, texts ...string) []domain.EntityHit {
	hits := make([]domain.EntityHit, len(texts))
	for i, text := range texts {
		d := float64(i) * 0.1
		hits[i] = domain.EntityHit{
			Record:   domain.EntityRecord{ID: text, Text: text, Type: t},
			Distance: d,
			Score:    1 - d,
		}
	}
	return hits
}
