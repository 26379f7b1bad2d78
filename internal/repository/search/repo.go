package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/domain/search/filter"
	"github.com/kailas-cloud/nerprompt/internal/repository/collection"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo runs nearest-neighbour searches over entity and sentence collections.
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// SearchEntities returns the k entity records of type t closest to vector.
// The type filter is applied before ranking, so up to k hits of that type come back.
func (r *Repo) SearchEntities(
	ctx context.Context, c domain.Collection, vector []float32, k int, t domain.EntityType,
) ([]domain.EntityHit, error) {
	filters, err := filter.Equals(collection.FieldEntityType, string(t))
	if err != nil {
		return nil, fmt.Errorf("entity filter: %w", err)
	}

	sr, err := r.search(ctx, c, vector, k, filters,
		[]string{collection.FieldText, collection.FieldEntityType})
	if err != nil {
		return nil, err
	}

	hits := make([]domain.EntityHit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		hits = append(hits, domain.EntityHit{
			Record: domain.EntityRecord{
				ID:   e.ID,
				Text: e.Fields[collection.FieldText],
				Type: domain.EntityType(e.Fields[collection.FieldEntityType]),
			},
			Distance: e.Distance,
			Score:    e.Similarity(sr.Metric),
		})
	}
	return hits, nil
}

// SearchSentences returns the k sentence records closest to vector.
// Hits whose stored labels do not parse carry LabelsErr instead of failing the search.
func (r *Repo) SearchSentences(
	ctx context.Context, c domain.Collection, vector []float32, k int,
) ([]domain.SentenceHit, error) {
	sr, err := r.search(ctx, c, vector, k, filter.Expression{},
		[]string{collection.FieldText, collection.FieldLabels})
	if err != nil {
		return nil, err
	}

	hits := make([]domain.SentenceHit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		hit := domain.SentenceHit{
			Record: domain.SentenceRecord{
				ID:   e.ID,
				Text: e.Fields[collection.FieldText],
			},
			Distance: e.Distance,
			Score:    e.Similarity(sr.Metric),
		}
		labels, perr := domain.ParseNERLabels(json.RawMessage(e.Fields[collection.FieldLabels]), c.Language)
		if perr != nil {
			hit.Record.Labels = domain.NERLabels{}
			hit.LabelsErr = fmt.Errorf("sentence %s: stored labels: %w", e.ID, perr)
		} else {
			hit.Record.Labels = labels
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (r *Repo) search(
	ctx context.Context, c domain.Collection, vector []float32, k int,
	filters filter.Expression, fields []string,
) (*db.SearchResult, error) {
	if k <= 0 {
		return &db.SearchResult{}, nil
	}
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		Collection:   c.Name(),
		Filters:      filters,
		Vector:       vector,
		K:            k,
		ReturnFields: fields,
	})
	if err != nil {
		if errors.Is(err, db.ErrCollectionNotFound) {
			return nil, fmt.Errorf("search %s: %w: %w", c, domain.ErrCollectionNotFound, err)
		}
		return nil, fmt.Errorf("search %s: %w", c, err)
	}
	return sr, nil
}
