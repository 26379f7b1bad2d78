package collection

import (
	"context"

	"github.com/kailas-cloud/nerprompt/internal/db"
)

const testVectorDim = 4

// mockStore implements the consumer interface for tests.
type mockStore struct {
	createFn   func(ctx context.Context, def *db.CollectionDefinition) error
	describeFn func(ctx context.Context, name string) (*db.CollectionDefinition, error)
	dropFn     func(ctx context.Context, name string) error
	listFn     func(ctx context.Context) ([]string, error)
	countFn    func(ctx context.Context, name string) (int, error)
}

func (m *mockStore) CreateCollection(ctx context.Context, def *db.CollectionDefinition) error {
	if m.createFn != nil {
		return m.createFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DescribeCollection(ctx context.Context, name string) (*db.CollectionDefinition, error) {
	if m.describeFn != nil {
		return m.describeFn(ctx, name)
	}
	return nil, db.ErrCollectionNotFound
}

func (m *mockStore) DropCollection(ctx context.Context, name string) error {
	if m.dropFn != nil {
		return m.dropFn(ctx, name)
	}
	return nil
}

func (m *mockStore) ListCollections(ctx context.Context) ([]string, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockStore) CountRecords(ctx context.Context, name string) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, name)
	}
	return 0, nil
}

func newTestRepo() (*Repo, *mockStore) {
	ms := &mockStore{}
	return New(ms, Schema{Dim: testVectorDim, Metric: db.DistanceCosine}), ms
}
