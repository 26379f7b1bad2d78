package batch

import (
	"context"

	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/usecase/instruction"
)

// Builder answers a single query.
type Builder interface {
	Build(ctx context.Context, q domain.Query, withDetails bool) (instruction.Output, error)
}
