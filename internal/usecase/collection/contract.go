package collection

import (
	"context"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// Repository describes and drops stored collections.
type Repository interface {
	Info(ctx context.Context, c domain.Collection) (domain.CollectionInfo, error)
	Drop(ctx context.Context, c domain.Collection) error
}
