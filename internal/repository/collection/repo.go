package collection

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// store is the consumer interface for collections (ISP).
type store interface {
	CreateCollection(ctx context.Context, def *db.CollectionDefinition) error
	DescribeCollection(ctx context.Context, name string) (*db.CollectionDefinition, error)
	DropCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	CountRecords(ctx context.Context, name string) (int, error)
}

// Handle is a verified reference to an existing collection.
type Handle struct {
	Collection domain.Collection
	Dim        int
	Metric     db.DistanceMetric
}

// Name returns the storage name of the collection.
func (h Handle) Name() string { return h.Collection.Name() }

// Repo manages collection lifecycle on top of a db store.
type Repo struct {
	store  store
	schema Schema
}

// New creates a collection repository.
func New(s store, schema Schema) *Repo {
	if schema.Metric == "" {
		schema.Metric = db.DistanceCosine
	}
	return &Repo{store: s, schema: schema}
}

// Ensure returns a handle to the collection, creating it if absent.
// An existing collection with a different dimension or metric is a schema mismatch.
func (r *Repo) Ensure(ctx context.Context, c domain.Collection) (Handle, error) {
	def, err := r.store.DescribeCollection(ctx, c.Name())
	if errors.Is(err, db.ErrCollectionNotFound) {
		def, err = r.create(ctx, c)
	}
	if err != nil {
		return Handle{}, err
	}
	return r.verify(c, def)
}

func (r *Repo) create(ctx context.Context, c domain.Collection) (*db.CollectionDefinition, error) {
	def, err := definition(c, r.schema)
	if err != nil {
		return nil, fmt.Errorf("build definition %s: %w", c, err)
	}
	err = r.store.CreateCollection(ctx, def)
	switch {
	case err == nil:
		return def, nil
	case errors.Is(err, db.ErrCollectionExists):
		// lost a creation race, use whatever the winner created
		return r.store.DescribeCollection(ctx, c.Name())
	default:
		return nil, fmt.Errorf("create collection %s: %w", c, err)
	}
}

func (r *Repo) verify(c domain.Collection, def *db.CollectionDefinition) (Handle, error) {
	if def.Vector.Dim != r.schema.Dim {
		return Handle{}, &domain.SchemaMismatchError{
			Collection: c.Name(),
			Expected:   "dim " + strconv.Itoa(r.schema.Dim),
			Actual:     "dim " + strconv.Itoa(def.Vector.Dim),
		}
	}
	if def.Vector.Metric != r.schema.Metric {
		return Handle{}, &domain.SchemaMismatchError{
			Collection: c.Name(),
			Expected:   "metric " + string(r.schema.Metric),
			Actual:     "metric " + string(def.Vector.Metric),
		}
	}
	return Handle{Collection: c, Dim: def.Vector.Dim, Metric: def.Vector.Metric}, nil
}

// Open returns a handle to an existing collection without creating it.
func (r *Repo) Open(ctx context.Context, c domain.Collection) (Handle, error) {
	def, err := r.store.DescribeCollection(ctx, c.Name())
	if err != nil {
		return Handle{}, mapNotFound(c.Name(), err)
	}
	return r.verify(c, def)
}

// Info describes a collection and counts its records.
func (r *Repo) Info(ctx context.Context, c domain.Collection) (domain.CollectionInfo, error) {
	def, err := r.store.DescribeCollection(ctx, c.Name())
	if err != nil {
		return domain.CollectionInfo{}, mapNotFound(c.Name(), err)
	}
	n, err := r.store.CountRecords(ctx, c.Name())
	if err != nil {
		return domain.CollectionInfo{}, mapNotFound(c.Name(), err)
	}
	return domain.CollectionInfo{
		Name:      c.Name(),
		VectorDim: def.Vector.Dim,
		Metric:    string(def.Vector.Metric),
		Count:     n,
	}, nil
}

// Drop removes a collection and all of its records.
func (r *Repo) Drop(ctx context.Context, c domain.Collection) error {
	if err := r.store.DropCollection(ctx, c.Name()); err != nil {
		return mapNotFound(c.Name(), err)
	}
	return nil
}

// List returns the names of all stored collections.
func (r *Repo) List(ctx context.Context) ([]string, error) {
	names, err := r.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

func mapNotFound(name string, err error) error {
	if errors.Is(err, db.ErrCollectionNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	return fmt.Errorf("collection %s: %w", name, err)
}
