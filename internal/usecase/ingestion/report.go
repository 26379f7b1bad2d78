package ingestion

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/nerprompt/internal/dataset"
	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// Report is the outcome of ingesting one (language, kind) collection.
type Report struct {
	Language   domain.Language   `json:"language"`
	Kind       domain.Kind       `json:"kind"`
	Received   int               `json:"received"`
	Duplicates int               `json:"duplicates"`
	Inserted   int               `json:"inserted"`
	Failed     int               `json:"failed"`
	Failures   []dataset.Failure `json:"failures,omitempty"`
}

// Err returns ErrPartialIngestionFailure when any record was rejected.
func (r Report) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s %s: %d of %d records failed",
		domain.ErrPartialIngestionFailure, r.Kind, r.Language, r.Failed, r.Received)
}

func (r *Report) fail(f dataset.Failure) {
	r.Failed++
	r.Failures = append(r.Failures, f)
}

// Err joins the errors of all reports.
func Err(reports []Report) error {
	var errs []error
	for _, r := range reports {
		if err := r.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Totals sums the counters of all reports.
func Totals(reports []Report) (received, duplicates, inserted, failed int) {
	for _, r := range reports {
		received += r.Received
		duplicates += r.Duplicates
		inserted += r.Inserted
		failed += r.Failed
	}
	return received, duplicates, inserted, failed
}
