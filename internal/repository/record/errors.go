package record

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/domain"
)

func mapErr(err error) error {
	if errors.Is(err, db.ErrCollectionNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrCollectionNotFound, err)
	}
	return err
}
