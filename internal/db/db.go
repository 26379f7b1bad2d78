package db

import (
	"context"
	"time"
)

// Store is the vector backend facade combining all sub-interfaces.
//
//nolint:interfacebloat // consumers depend on narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	CollectionManager
	Writer
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CollectionManager provides collection lifecycle operations.
type CollectionManager interface {
	// CreateCollection fails with ErrCollectionExists when the name is taken.
	CreateCollection(ctx context.Context, def *CollectionDefinition) error
	// DescribeCollection fails with ErrCollectionNotFound for unknown names.
	DescribeCollection(ctx context.Context, name string) (*CollectionDefinition, error)
	DropCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	CountRecords(ctx context.Context, name string) (int, error)
}

// Record is a stored vector with its string payload.
type Record struct {
	Fields map[string]string
	Vector []float32
}

// Writer appends records.
type Writer interface {
	// InsertRecords writes all records or none and returns one store-generated ID per record.
	InsertRecords(ctx context.Context, collection string, records []Record) ([]string, error)
}

// Searcher provides nearest-neighbour search.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}

// KVStore provides simple key-value operations (embedding cache).
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
