// Package memory is an in-process db.Store with exact search.
// Used for tests, local runs and as the default when no backend is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/nerprompt/internal/db"
)

// Compile-time check: Store implements db.Store.
var (
	_ db.Store   = (*Store)(nil)
	_ db.KVStore = (*Store)(nil)
)

type collection struct {
	def     *db.CollectionDefinition
	records []db.Candidate
	seq     uint64
}

// Store keeps collections and key-value pairs in memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	kv          map[string][]byte
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]*collection),
		kv:          make(map[string][]byte),
	}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// CreateCollection registers a new collection.
func (s *Store) CreateCollection(_ context.Context, def *db.CollectionDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[def.Name]; ok {
		return db.ErrCollectionExists
	}
	cp := *def
	cp.Fields = append([]db.Field(nil), def.Fields...)
	s.collections[def.Name] = &collection{def: &cp}
	return nil
}

// DescribeCollection returns a copy of the collection definition.
func (s *Store) DescribeCollection(_ context.Context, name string) (*db.CollectionDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, db.ErrCollectionNotFound
	}
	cp := *c.def
	cp.Fields = append([]db.Field(nil), c.def.Fields...)
	return &cp, nil
}

// DropCollection removes a collection with all its records.
func (s *Store) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; !ok {
		return db.ErrCollectionNotFound
	}
	delete(s.collections, name)
	return nil
}

// ListCollections returns collection names sorted alphabetically.
func (s *Store) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CountRecords returns the number of records in a collection.
func (s *Store) CountRecords(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return 0, db.ErrCollectionNotFound
	}
	return len(c.records), nil
}

// InsertRecords appends records atomically. Any invalid record rejects the whole batch.
func (s *Store) InsertRecords(ctx context.Context, name string, records []db.Record) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, db.ErrCollectionNotFound
	}
	for i, r := range records {
		if err := c.def.ValidateRecord(r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	ids := make([]string, len(records))
	for i, r := range records {
		id := uuid.NewString()
		fields := make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		c.records = append(c.records, db.Candidate{
			ID:     id,
			Seq:    c.seq,
			Vector: append([]float32(nil), r.Vector...),
			Fields: fields,
		})
		c.seq++
		ids[i] = id
	}
	return ids, nil
}

// SearchKNN performs an exact scan over the collection.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[q.Collection]
	if !ok {
		return nil, db.ErrCollectionNotFound
	}
	if len(q.Vector) != c.def.Vector.Dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", db.ErrDimensionMismatch, c.def.Vector.Dim, len(q.Vector))
	}

	candidates := c.records
	if !q.Filters.IsEmpty() {
		candidates = make([]db.Candidate, 0, len(c.records))
		for _, r := range c.records {
			if q.Filters.Matches(r.Fields) {
				candidates = append(candidates, r)
			}
		}
	}

	return &db.SearchResult{
		Metric:  c.def.Vector.Metric,
		Entries: db.RankExact(c.def.Vector.Metric, q.Vector, q.K, candidates, q.ReturnFields),
	}, nil
}

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a value at the given key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv[key] = append([]byte(nil), value...)
	return nil
}
