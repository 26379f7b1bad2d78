package record

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/repository/collection"
)

func TestInsertEntities_HappyPath(t *testing.T) {
	repo, ms := newTestRepo()

	report, err := repo.InsertEntities(context.Background(), handle(domain.KindEntity), []domain.EntityRecord{
		{Text: " Barack Obama ", Type: domain.EntityPerson, Embedding: vec()},
		{Text: "Hawaii", Type: domain.EntityLocation, Embedding: vec()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Inserted() != 2 || len(report.Failures) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if ms.calls != 1 {
		t.Errorf("InsertRecords calls = %d, want 1", ms.calls)
	}
	first := ms.inserted[0].Fields
	if first[collection.FieldText] != "Barack Obama" || first[collection.FieldEntityType] != "PERSON" {
		t.Errorf("fields = %v", first)
	}
}

func TestInsertEntities_StoresCanonicalType(t *testing.T) {
	repo, ms := newTestRepo()

	report, err := repo.InsertEntities(context.Background(), handle(domain.KindEntity), []domain.EntityRecord{
		{Text: "DNA", Type: "SCIENCE ENTITY", Embedding: vec()},
		{Text: "Paris", Type: "location", Embedding: vec()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Inserted() != 2 {
		t.Fatalf("report = %+v", report)
	}
	if got := ms.inserted[0].Fields[collection.FieldEntityType]; got != string(domain.EntityScience) {
		t.Errorf("entity_type = %q, want %q", got, domain.EntityScience)
	}
	if got := ms.inserted[1].Fields[collection.FieldEntityType]; got != string(domain.EntityLocation) {
		t.Errorf("entity_type = %q, want %q", got, domain.EntityLocation)
	}
}

func TestInsertEntities_PartialInvalid(t *testing.T) {
	repo, ms := newTestRepo()

	report, err := repo.InsertEntities(context.Background(), handle(domain.KindEntity), []domain.EntityRecord{
		{Text: "Paris", Type: domain.EntityLocation, Embedding: vec()},
		{Text: "  ", Type: domain.EntityLocation, Embedding: vec()},
		{Text: "Mona Lisa", Type: domain.EntityArt, Embedding: []float32{1}},
		{Text: "Thing", Type: "ANIMAL", Embedding: vec()},
		{Text: "Louvre", Type: domain.EntityFacility, Embedding: vec()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Inserted() != 2 {
		t.Errorf("inserted = %d, want 2", report.Inserted())
	}
	if len(ms.inserted) != 2 {
		t.Errorf("store received %d records, want 2", len(ms.inserted))
	}
	if report.IDs[0] == "" || report.IDs[4] == "" || report.IDs[1] != "" {
		t.Errorf("ids = %v", report.IDs)
	}
	wantIdx := []int{1, 2, 3}
	if len(report.Failures) != len(wantIdx) {
		t.Fatalf("failures = %+v", report.Failures)
	}
	for i, f := range report.Failures {
		if f.Index != wantIdx[i] {
			t.Errorf("failure[%d].Index = %d, want %d", i, f.Index, wantIdx[i])
		}
	}
}

func TestInsertEntities_AllInvalidSkipsStore(t *testing.T) {
	repo, ms := newTestRepo()

	report, err := repo.InsertEntities(context.Background(), handle(domain.KindEntity), []domain.EntityRecord{
		{Text: "", Type: domain.EntityPerson, Embedding: vec()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.calls != 0 {
		t.Error("store must not be called when nothing is valid")
	}
	if report.Inserted() != 0 || len(report.Failures) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestInsertEntities_WrongKind(t *testing.T) {
	repo, _ := newTestRepo()

	_, err := repo.InsertEntities(context.Background(), handle(domain.KindSentence), []domain.EntityRecord{
		{Text: "x", Type: domain.EntityPerson, Embedding: vec()},
	})
	if err == nil {
		t.Fatal("expected error for sentence collection")
	}
}

func TestInsertEntities_StoreError(t *testing.T) {
	repo, ms := newTestRepo()
	boom := errors.New("connection reset")
	ms.insertFn = func(_ context.Context, _ string, _ []db.Record) ([]string, error) {
		return nil, boom
	}

	report, err := repo.InsertEntities(context.Background(), handle(domain.KindEntity), []domain.EntityRecord{
		{Text: "Paris", Type: domain.EntityLocation, Embedding: vec()},
		{Text: "", Type: domain.EntityLocation, Embedding: vec()},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if report.Inserted() != 0 || len(report.Failures) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if report.Failures[0].Index != 0 || report.Failures[1].Index != 1 {
		t.Errorf("failures not ordered by index: %+v", report.Failures)
	}
}

func TestInsertEntities_CollectionNotFound(t *testing.T) {
	repo, ms := newTestRepo()
	ms.insertFn = func(_ context.Context, _ string, _ []db.Record) ([]string, error) {
		return nil, db.ErrCollectionNotFound
	}

	_, err := repo.InsertEntities(context.Background(), handle(domain.KindEntity), []domain.EntityRecord{
		{Text: "Paris", Type: domain.EntityLocation, Embedding: vec()},
	})
	if !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected domain.ErrCollectionNotFound, got %v", err)
	}
}

func TestInsertSentences_StoresCanonicalLabels(t *testing.T) {
	repo, ms := newTestRepo()

	report, err := repo.InsertSentences(context.Background(), handle(domain.KindSentence), []domain.SentenceRecord{{
		Text: "Obama visited Paris.",
		Labels: domain.NERLabels{
			{Type: domain.EntityLocation, Text: "Paris"},
			{Type: domain.EntityPerson, Text: "Obama"},
		},
		Embedding: vec(),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Inserted() != 1 {
		t.Fatalf("report = %+v", report)
	}
	want := `{"PERSON":["Obama"],"LOCATION":["Paris"]}`
	if got := ms.inserted[0].Fields[collection.FieldLabels]; got != want {
		t.Errorf("labels = %s, want %s", got, want)
	}
}

func TestInsertSentences_EmptyLabelsAllowed(t *testing.T) {
	repo, ms := newTestRepo()

	_, err := repo.InsertSentences(context.Background(), handle(domain.KindSentence), []domain.SentenceRecord{
		{Text: "Nothing to see here.", Embedding: vec()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ms.inserted[0].Fields[collection.FieldLabels]; got != "{}" {
		t.Errorf("labels = %q, want {}", got)
	}
}
