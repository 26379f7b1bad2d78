// Package bolt is a persistent single-node db.Store on top of bbolt.
// Records are kept in memory for search and written through to disk.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/kailas-cloud/nerprompt/internal/db"
)

// Compile-time check: Store implements db.Store.
var (
	_ db.Store   = (*Store)(nil)
	_ db.KVStore = (*Store)(nil)
)

var (
	bucketCollections = []byte("collections")
	bucketRecords     = []byte("records")
	bucketKV          = []byte("kv")
)

type storedRecord struct {
	ID     string            `json:"id"`
	Vector []float32         `json:"v"`
	Fields map[string]string `json:"m,omitempty"`
}

type cached struct {
	def     *db.CollectionDefinition
	records []db.Candidate
}

// Store implements db.Store backed by a bbolt file.
type Store struct {
	bdb *bbolt.DB

	mu          sync.RWMutex
	collections map[string]*cached
}

// Open opens (or creates) the database file and loads all collections into memory.
func Open(path string) (*Store, error) {
	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketCollections, bucketRecords, bucketKV} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}

	s := &Store{bdb: bdb, collections: make(map[string]*cached)}
	if err := s.load(); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("failed to load collections: %w", err)
	}
	return s, nil
}

func (s *Store) load() error {
	return s.bdb.View(func(tx *bbolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		return tx.Bucket(bucketCollections).ForEach(func(k, v []byte) error {
			var def db.CollectionDefinition
			if err := json.Unmarshal(v, &def); err != nil {
				return fmt.Errorf("collection %s: %w", k, err)
			}
			c := &cached{def: &def}
			if rb := records.Bucket(k); rb != nil {
				err := rb.ForEach(func(key, val []byte) error {
					var sr storedRecord
					if err := json.Unmarshal(val, &sr); err != nil {
						return nil // skip corrupted entries
					}
					c.records = append(c.records, db.Candidate{
						ID:     sr.ID,
						Seq:    binary.BigEndian.Uint64(key),
						Vector: sr.Vector,
						Fields: sr.Fields,
					})
					return nil
				})
				if err != nil {
					return err
				}
			}
			s.collections[string(k)] = c
			return nil
		})
	})
}

// Ping checks that the file is still open.
func (s *Store) Ping(_ context.Context) error {
	return s.bdb.View(func(_ *bbolt.Tx) error { return nil })
}

// Close closes the database file.
func (s *Store) Close() {
	_ = s.bdb.Close()
}

// WaitForReady returns immediately: the file was opened in Open.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// CreateCollection persists the definition and creates the records bucket.
func (s *Store) CreateCollection(_ context.Context, def *db.CollectionDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[def.Name]; ok {
		return db.ErrCollectionExists
	}
	err = s.bdb.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketCollections).Put([]byte(def.Name), data); err != nil {
			return err
		}
		_, err := tx.Bucket(bucketRecords).CreateBucketIfNotExists([]byte(def.Name))
		return err
	})
	if err != nil {
		return &db.Error{Op: db.OpBoltUpdate, Err: err}
	}

	cp := *def
	cp.Fields = append([]db.Field(nil), def.Fields...)
	s.collections[def.Name] = &cached{def: &cp}
	return nil
}

// DescribeCollection returns a copy of the stored definition.
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

// DropCollection deletes the definition and all records.
func (s *Store) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; !ok {
		return db.ErrCollectionNotFound
	}
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketCollections).Delete([]byte(name)); err != nil {
			return err
		}
		err := tx.Bucket(bucketRecords).DeleteBucket([]byte(name))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return &db.Error{Op: db.OpBoltUpdate, Err: err}
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

// InsertRecords writes all records in one transaction. Keys are the bucket sequence
// so that iteration order on reload matches insertion order.
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
	added := make([]db.Candidate, 0, len(records))
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketRecords).CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		for i, r := range records {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			sr := storedRecord{ID: uuid.NewString(), Vector: r.Vector, Fields: r.Fields}
			data, err := json.Marshal(sr)
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			if err := b.Put(key, data); err != nil {
				return err
			}
			ids[i] = sr.ID
			added = append(added, db.Candidate{
				ID:     sr.ID,
				Seq:    seq,
				Vector: append([]float32(nil), r.Vector...),
				Fields: copyFields(r.Fields),
			})
		}
		return nil
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpBoltUpdate, Err: err}
	}

	c.records = append(c.records, added...)
	return ids, nil
}

// SearchKNN performs an exact scan over the cached records.
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
	var out []byte
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketKV).Get([]byte(key))
		if v == nil {
			return db.ErrKeyNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, err
		}
		return nil, &db.Error{Op: db.OpBoltView, Err: err}
	}
	return out, nil
}

// Set stores a value at the given key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), value)
	})
	if err != nil {
		return &db.Error{Op: db.OpBoltUpdate, Err: err}
	}
	return nil
}

func copyFields(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
