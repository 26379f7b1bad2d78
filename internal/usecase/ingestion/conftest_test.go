package ingestion

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/db/memory"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/repository/collection"
	"github.com/kailas-cloud/nerprompt/internal/repository/record"
	"github.com/kailas-cloud/nerprompt/internal/transport/hashembed"
)

const testDim = 64

type testEnv struct {
	store *memory.Store
	colls *collection.Repo
	embed *countingBatchEmbedder
	svc   *Service
}

// countingBatchEmbedder wraps the hashing embedder and counts batch calls.
type countingBatchEmbedder struct {
	inner *hashembed.Embedder
	calls int
	err   error
}

func (c *countingBatchEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return c.inner.Embed(ctx, text)
}

func (c *countingBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	c.calls++
	if c.err != nil {
		return domain.BatchEmbeddingResult{}, c.err
	}
	return c.inner.BatchEmbed(ctx, texts)
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	store := memory.NewStore()
	colls := collection.New(store, collection.Schema{Dim: testDim, Metric: db.DistanceCosine})
	emb := &countingBatchEmbedder{inner: hashembed.New(testDim)}
	return &testEnv{
		store: store,
		colls: colls,
		embed: emb,
		svc:   New(colls, record.New(store), emb, cfg, zap.NewNop()),
	}
}

func (e *testEnv) count(t *testing.T, lang domain.Language, kind domain.Kind) int {
	t.Helper()
	info, err := e.colls.Info(context.Background(), domain.NewCollection(lang, kind))
	if err != nil {
		t.Fatalf("info %s_%s: %v", kind, lang, err)
	}
	return info.Count
}
