package collection

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/db/memory"
	"github.com/kailas-cloud/nerprompt/internal/domain"
)

var entityEN = domain.NewCollection(domain.LangEN, domain.KindEntity)

// --- Ensure ---

func TestEnsure_CreatesMissing(t *testing.T) {
	repo, ms := newTestRepo()

	var created *db.CollectionDefinition
	ms.createFn = func(_ context.Context, def *db.CollectionDefinition) error {
		created = def
		return nil
	}

	h, err := repo.Ensure(context.Background(), entityEN)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected CreateCollection call")
	}
	if created.Name != "entity_en" {
		t.Errorf("name = %q, want entity_en", created.Name)
	}
	if f, ok := created.Field(FieldEntityType); !ok || f.Type != db.FieldTag {
		t.Errorf("entity_type field = %+v, %v; want TAG", f, ok)
	}
	if h.Dim != testVectorDim || h.Name() != "entity_en" {
		t.Errorf("handle = %+v", h)
	}
}

func TestEnsure_SentenceSchema(t *testing.T) {
	repo, ms := newTestRepo()

	var created *db.CollectionDefinition
	ms.createFn = func(_ context.Context, def *db.CollectionDefinition) error {
		created = def
		return nil
	}

	if _, err := repo.Ensure(context.Background(), domain.NewCollection(domain.LangZH, domain.KindSentence)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Name != "sentence_zh" {
		t.Errorf("name = %q", created.Name)
	}
	if _, ok := created.Field(FieldLabels); !ok {
		t.Error("sentence collection must have ner_labels field")
	}
	if _, ok := created.Field(FieldEntityType); ok {
		t.Error("sentence collection must not have entity_type field")
	}
}

func TestEnsure_ExistingMatches(t *testing.T) {
	repo, ms := newTestRepo()
	ms.describeFn = func(_ context.Context, _ string) (*db.CollectionDefinition, error) {
		return db.NewCollection("entity_en").Vector(testVectorDim, db.DistanceCosine).MustBuild(), nil
	}
	ms.createFn = func(_ context.Context, _ *db.CollectionDefinition) error {
		t.Error("CreateCollection must not be called for existing collection")
		return nil
	}

	if _, err := repo.Ensure(context.Background(), entityEN); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsure_DimensionMismatch(t *testing.T) {
	repo, ms := newTestRepo()
	ms.describeFn = func(_ context.Context, _ string) (*db.CollectionDefinition, error) {
		return db.NewCollection("entity_en").Vector(768, db.DistanceCosine).MustBuild(), nil
	}

	_, err := repo.Ensure(context.Background(), entityEN)
	if !errors.Is(err, domain.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	var sm *domain.SchemaMismatchError
	if !errors.As(err, &sm) || sm.Actual != "dim 768" {
		t.Errorf("mismatch detail = %+v", sm)
	}
}

func TestEnsure_MetricMismatch(t *testing.T) {
	repo, ms := newTestRepo()
	ms.describeFn = func(_ context.Context, _ string) (*db.CollectionDefinition, error) {
		return db.NewCollection("entity_en").Vector(testVectorDim, db.DistanceL2).MustBuild(), nil
	}

	if _, err := repo.Ensure(context.Background(), entityEN); !errors.Is(err, domain.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestEnsure_CreateRace(t *testing.T) {
	repo, ms := newTestRepo()
	calls := 0
	ms.describeFn = func(_ context.Context, _ string) (*db.CollectionDefinition, error) {
		calls++
		if calls == 1 {
			return nil, db.ErrCollectionNotFound
		}
		return db.NewCollection("entity_en").Vector(testVectorDim, db.DistanceCosine).MustBuild(), nil
	}
	ms.createFn = func(_ context.Context, _ *db.CollectionDefinition) error {
		return db.ErrCollectionExists
	}

	if _, err := repo.Ensure(context.Background(), entityEN); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("describe calls = %d, want 2", calls)
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	repo := New(memory.NewStore(), Schema{Dim: testVectorDim, Metric: db.DistanceCosine})
	ctx := context.Background()

	for range 3 {
		if _, err := repo.Ensure(ctx, entityEN); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	names, _ := repo.List(ctx)
	if len(names) != 1 {
		t.Errorf("collections = %v, want exactly one", names)
	}
}

// --- Open / Info / Drop ---

func TestOpen_NotFound(t *testing.T) {
	repo, _ := newTestRepo()

	_, err := repo.Open(context.Background(), entityEN)
	if !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected domain.ErrCollectionNotFound, got %v", err)
	}
}

func TestInfo(t *testing.T) {
	repo, ms := newTestRepo()
	ms.describeFn = func(_ context.Context, _ string) (*db.CollectionDefinition, error) {
		return db.NewCollection("entity_en").Vector(testVectorDim, db.DistanceCosine).MustBuild(), nil
	}
	ms.countFn = func(_ context.Context, _ string) (int, error) { return 42, nil }

	info, err := repo.Info(context.Background(), entityEN)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Count != 42 || info.VectorDim != testVectorDim || info.Metric != "COSINE" {
		t.Errorf("info = %+v", info)
	}
}

func TestDrop_MapsNotFound(t *testing.T) {
	repo, ms := newTestRepo()
	ms.dropFn = func(_ context.Context, _ string) error { return db.ErrCollectionNotFound }

	if err := repo.Drop(context.Background(), entityEN); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected domain.ErrCollectionNotFound, got %v", err)
	}
}

func TestDrop_PropagatesOtherErrors(t *testing.T) {
	repo, ms := newTestRepo()
	boom := errors.New("connection lost")
	ms.dropFn = func(_ context.Context, _ string) error { return boom }

	err := repo.Drop(context.Background(), entityEN)
	if !errors.Is(err, boom) || errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("unexpected error: %v", err)
	}
}
