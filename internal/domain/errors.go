package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a rejected query, record or document.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmbeddingFailure signals an embedding provider failure.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrCollectionNotFound signals a missing vector collection.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrSchemaMismatch signals an existing collection with an incompatible schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrPartialIngestionFailure signals that some records of an ingestion run were rejected.
	ErrPartialIngestionFailure = errors.New("partial ingestion failure")
	// ErrRateLimited signals a provider rate limit hit. Retryable.
	ErrRateLimited = errors.New("rate limited")
)

// ErrorKind is the stable, client-facing name of an error category.
type ErrorKind string

// Error kinds exposed over the API and in warnings.
const (
	KindInvalidInput       ErrorKind = "invalid_input"
	KindEmbeddingFailure   ErrorKind = "embedding_failure"
	KindCollectionNotFound ErrorKind = "collection_not_found"
	KindSchemaMismatch     ErrorKind = "schema_mismatch"
	KindPartialIngestion   ErrorKind = "partial_ingestion_failure"
	KindRateLimited        ErrorKind = "rate_limited"
	KindTimeout            ErrorKind = "timeout"
	KindInternal           ErrorKind = "internal_error"
)

// Order matters: a rate-limited provider error is also an embedding failure.
var kindSentinels = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrCollectionNotFound, KindCollectionNotFound},
	{ErrSchemaMismatch, KindSchemaMismatch},
	{ErrRateLimited, KindRateLimited},
	{ErrEmbeddingFailure, KindEmbeddingFailure},
	{ErrPartialIngestionFailure, KindPartialIngestion},
	{context.DeadlineExceeded, KindTimeout},
}

// KindOf maps an error chain to its ErrorKind. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, s := range kindSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindInternal
}

// InvalidInputError wraps ErrInvalidInput with the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidInput.Error(), e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// NewInvalidInput creates an invalid input error for a field.
func NewInvalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// SchemaMismatchError wraps ErrSchemaMismatch with the conflicting schema values.
type SchemaMismatchError struct {
	Collection string
	Expected   string
	Actual     string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: collection %s has %s, expected %s",
		ErrSchemaMismatch.Error(), e.Collection, e.Actual, e.Expected)
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }
