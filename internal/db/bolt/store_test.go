package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/domain/search/filter"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nerprompt.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, path
}

func sentenceDef(name string) *db.CollectionDefinition {
	return db.NewCollection(name).
		Text("text", 4096).
		Text("ner_labels", 8192).
		Vector(2, db.DistanceCosine).
		MustBuild()
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	if err := s.CreateCollection(ctx, sentenceDef("sentence_en")); err != nil {
		t.Fatalf("create: %v", err)
	}
	ids, err := s.InsertRecords(ctx, "sentence_en", []db.Record{
		{Fields: map[string]string{"text": "first"}, Vector: []float32{1, 0}},
		{Fields: map[string]string{"text": "second"}, Vector: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v", ids)
	}
	if err := s.Set(ctx, "emb:abc", []byte{1, 2, 3}); err != nil {
		t.Fatalf("set: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	def, err := s2.DescribeCollection(ctx, "sentence_en")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if def.Vector.Dim != 2 || len(def.Fields) != 2 {
		t.Errorf("definition = %+v", def)
	}

	res, err := s2.SearchKNN(ctx, &db.KNNQuery{Collection: "sentence_en", Vector: []float32{1, 0}, K: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(res.Entries))
	}
	// equal distance: insertion order wins
	if res.Entries[0].ID != ids[0] || res.Entries[1].ID != ids[1] {
		t.Errorf("order = %s %s, want %s %s", res.Entries[0].ID, res.Entries[1].ID, ids[0], ids[1])
	}

	v, err := s2.Get(ctx, "emb:abc")
	if err != nil || len(v) != 3 {
		t.Errorf("kv = %v, %v", v, err)
	}
}

func TestStore_FilteredSearch(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	def := db.NewCollection("entity_de").Tag("entity_type").Text("text", 512).Vector(2, db.DistanceL2).MustBuild()
	if err := s.CreateCollection(ctx, def); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.InsertRecords(ctx, "entity_de", []db.Record{
		{Fields: map[string]string{"text": "München", "entity_type": "LOCATION"}, Vector: []float32{0, 0}},
		{Fields: map[string]string{"text": "Goethe", "entity_type": "PERSON"}, Vector: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	expr, _ := filter.Equals("entity_type", "PERSON")
	res, err := s.SearchKNN(ctx, &db.KNNQuery{Collection: "entity_de", Filters: expr, Vector: []float32{0, 0}, K: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Fields["text"] != "Goethe" {
		t.Fatalf("entries = %+v", res.Entries)
	}
	if res.Entries[0].Distance != 1 {
		t.Errorf("distance = %v, want 1", res.Entries[0].Distance)
	}
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	if err := s.CreateCollection(ctx, sentenceDef("sentence_en")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateCollection(ctx, sentenceDef("sentence_en")); !errors.Is(err, db.ErrCollectionExists) {
		t.Errorf("expected ErrCollectionExists, got %v", err)
	}
	if _, err := s.InsertRecords(ctx, "sentence_en", []db.Record{{Vector: []float32{1}}}); !errors.Is(err, db.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := s.CountRecords(ctx, "missing"); !errors.Is(err, db.ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestStore_Drop(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	_ = s.CreateCollection(ctx, sentenceDef("sentence_en"))
	_, _ = s.InsertRecords(ctx, "sentence_en", []db.Record{{Vector: []float32{1, 0}}})

	if err := s.DropCollection(ctx, "sentence_en"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	names, _ := s.ListCollections(ctx)
	if len(names) != 0 {
		t.Errorf("names = %v, want empty", names)
	}
	if err := s.CreateCollection(ctx, sentenceDef("sentence_en")); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if n, _ := s.CountRecords(ctx, "sentence_en"); n != 0 {
		t.Errorf("count after recreate = %d, want 0", n)
	}
}
