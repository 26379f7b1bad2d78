package nerprompt

import "github.com/kailas-cloud/nerprompt/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput            = domain.ErrInvalidInput
	ErrEmbeddingFailure        = domain.ErrEmbeddingFailure
	ErrCollectionNotFound      = domain.ErrCollectionNotFound
	ErrSchemaMismatch          = domain.ErrSchemaMismatch
	ErrPartialIngestionFailure = domain.ErrPartialIngestionFailure
	ErrRateLimited             = domain.ErrRateLimited
)
