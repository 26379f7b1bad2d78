package record

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/repository/collection"
)

const testVectorDim = 3

// mockStore implements the writer interface for tests.
type mockStore struct {
	insertFn func(ctx context.Context, collection string, records []db.Record) ([]string, error)
	calls    int
	inserted []db.Record
}

func (m *mockStore) InsertRecords(ctx context.Context, coll string, records []db.Record) ([]string, error) {
	m.calls++
	if m.insertFn != nil {
		return m.insertFn(ctx, coll, records)
	}
	m.inserted = append(m.inserted, records...)
	ids := make([]string, len(records))
	for i := range records {
		ids[i] = "id-" + strconv.Itoa(len(m.inserted)-len(records)+i)
	}
	return ids, nil
}

func newTestRepo() (*Repo, *mockStore) {
	ms := &mockStore{}
	return New(ms), ms
}

func handle(kind domain.Kind) collection.Handle {
	return collection.Handle{
		Collection: domain.NewCollection(domain.LangEN, kind),
		Dim:        testVectorDim,
		Metric:     db.DistanceCosine,
	}
}

func vec() []float32 { return []float32{0.1, 0.2, 0.3} }
