package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound         = errors.New("db: key not found")
	ErrCollectionNotFound  = errors.New("db: collection not found")
	ErrCollectionExists    = errors.New("db: collection already exists")
	ErrDimensionMismatch   = errors.New("db: vector dimension mismatch")
	ErrInvalidDefinition   = errors.New("db: invalid collection definition")
	ErrUnsupportedOperator = errors.New("db: unsupported filter")
)

// Op names used for error context. Valkey ops map to command names.
const (
	OpCreateIndex = "FT.CREATE"
	OpDropIndex   = "FT.DROPINDEX"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpDel         = "DEL"
	OpHGetAll     = "HGETALL"
	OpHSet        = "HSET"
	OpExists      = "EXISTS"
	OpScan        = "SCAN"
	OpGet         = "GET"
	OpSet         = "SET"

	OpBoltUpdate = "bolt.Update"
	OpBoltView   = "bolt.View"

	OpMilvusCreate   = "milvus.CreateCollection"
	OpMilvusDescribe = "milvus.DescribeCollection"
	OpMilvusDrop     = "milvus.DropCollection"
	OpMilvusList     = "milvus.ListCollections"
	OpMilvusStats    = "milvus.GetCollectionStats"
	OpMilvusInsert   = "milvus.Insert"
	OpMilvusSearch   = "milvus.Search"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
