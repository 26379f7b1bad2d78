package embcache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kailas-cloud/nerprompt/internal/db"
)

// DefaultLRUSize bounds the in-process cache when no size is configured.
const DefaultLRUSize = 10000

// LRUStore is an in-process, size-bounded key-value store for the embedding cache.
type LRUStore struct {
	cache *lru.Cache[string, []byte]
}

// NewLRUStore creates an LRU store holding at most size entries.
func NewLRUStore(size int) (*LRUStore, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUStore{cache: c}, nil
}

// Get returns db.ErrKeyNotFound on a miss.
func (s *LRUStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

// Set stores a copy of value, evicting the least recently used entry when full.
func (s *LRUStore) Set(_ context.Context, key string, value []byte) error {
	s.cache.Add(key, append([]byte(nil), value...))
	return nil
}

// Len returns the number of cached entries.
func (s *LRUStore) Len() int { return s.cache.Len() }
