package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/domain/search/filter"
)

func newEntityCollection(t *testing.T, s *Store, name string) {
	t.Helper()
	def := db.NewCollection(name).
		Tag("entity_type").
		Text("text", 512).
		Vector(2, db.DistanceCosine).
		MustBuild()
	if err := s.CreateCollection(context.Background(), def); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestCreateCollection_Duplicate(t *testing.T) {
	s := NewStore()
	newEntityCollection(t, s, "entity_en")

	def := db.NewCollection("entity_en").Vector(2, db.DistanceCosine).MustBuild()
	err := s.CreateCollection(context.Background(), def)
	if !errors.Is(err, db.ErrCollectionExists) {
		t.Fatalf("expected ErrCollectionExists, got %v", err)
	}
}

func TestDescribeCollection(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.DescribeCollection(ctx, "entity_en"); !errors.Is(err, db.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}

	newEntityCollection(t, s, "entity_en")
	def, err := s.DescribeCollection(ctx, "entity_en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Vector.Dim != 2 || def.Vector.Metric != db.DistanceCosine {
		t.Errorf("vector = %+v", def.Vector)
	}
}

func TestInsertAndSearch(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newEntityCollection(t, s, "entity_en")

	ids, err := s.InsertRecords(ctx, "entity_en", []db.Record{
		{Fields: map[string]string{"text": "Paris", "entity_type": "LOCATION"}, Vector: []float32{1, 0}},
		{Fields: map[string]string{"text": "Obama", "entity_type": "PERSON"}, Vector: []float32{0.9, 0.1}},
		{Fields: map[string]string{"text": "Berlin", "entity_type": "LOCATION"}, Vector: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(ids) != 3 || ids[0] == ids[1] {
		t.Fatalf("unexpected ids: %v", ids)
	}

	expr, _ := filter.Equals("entity_type", "LOCATION")
	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		Collection: "entity_en",
		Filters:    expr,
		Vector:     []float32{1, 0},
		K:          5,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Entries))
	}
	if res.Entries[0].Fields["text"] != "Paris" || res.Entries[1].Fields["text"] != "Berlin" {
		t.Errorf("order = %v, %v", res.Entries[0].Fields, res.Entries[1].Fields)
	}
	if res.Metric != db.DistanceCosine {
		t.Errorf("metric = %q", res.Metric)
	}

	n, err := s.CountRecords(ctx, "entity_en")
	if err != nil || n != 3 {
		t.Errorf("count = %d, %v; want 3", n, err)
	}
}

func TestInsertRecords_DimensionMismatchRejectsBatch(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newEntityCollection(t, s, "entity_en")

	_, err := s.InsertRecords(ctx, "entity_en", []db.Record{
		{Fields: map[string]string{"text": "ok"}, Vector: []float32{1, 0}},
		{Fields: map[string]string{"text": "bad"}, Vector: []float32{1, 0, 0}},
	})
	if !errors.Is(err, db.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if n, _ := s.CountRecords(ctx, "entity_en"); n != 0 {
		t.Errorf("count = %d, want 0 after rejected batch", n)
	}
}

func TestSearchKNN_Errors(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newEntityCollection(t, s, "entity_en")

	if _, err := s.SearchKNN(ctx, &db.KNNQuery{Collection: "missing", Vector: []float32{1, 0}, K: 1}); !errors.Is(err, db.ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{Collection: "entity_en", Vector: []float32{1}, K: 1}); !errors.Is(err, db.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{Collection: "entity_en", Vector: []float32{1, 0}}); err == nil {
		t.Error("expected error for k=0")
	}
}

func TestDropAndList(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newEntityCollection(t, s, "sentence_en")
	newEntityCollection(t, s, "entity_en")

	names, _ := s.ListCollections(ctx)
	if len(names) != 2 || names[0] != "entity_en" {
		t.Fatalf("names = %v", names)
	}
	if err := s.DropCollection(ctx, "entity_en"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := s.DropCollection(ctx, "entity_en"); !errors.Is(err, db.ErrCollectionNotFound) {
		t.Errorf("second drop: %v", err)
	}
}

func TestKV(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("get = %q, %v", got, err)
	}
}

func TestConcurrentInsertSearch(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newEntityCollection(t, s, "entity_en")

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.InsertRecords(ctx, "entity_en", []db.Record{
				{Fields: map[string]string{"text": "x"}, Vector: []float32{float32(i), 1}},
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = s.SearchKNN(ctx, &db.KNNQuery{Collection: "entity_en", Vector: []float32{1, 1}, K: 3})
		}()
	}
	wg.Wait()

	if n, _ := s.CountRecords(ctx, "entity_en"); n != 8 {
		t.Errorf("count = %d, want 8", n)
	}
}
