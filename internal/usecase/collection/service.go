// Package collection reports on and removes the per-language collections.
package collection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

var kinds = []domain.Kind{domain.KindEntity, domain.KindSentence}

// LanguageStats holds the record counts of one language.
type LanguageStats struct {
	Language  domain.Language `json:"language"`
	Entities  int             `json:"entity_count"`
	Sentences int             `json:"sentence_count"`
	Missing   []string        `json:"missing_collections,omitempty"`
}

// Stats is the database overview returned by Service.Stats.
type Stats struct {
	Languages      []LanguageStats `json:"languages"`
	TotalEntities  int             `json:"total_entities"`
	TotalSentences int             `json:"total_sentences"`
}

// CleanupReport lists what Service.Cleanup removed.
type CleanupReport struct {
	Dropped []string `json:"dropped"`
	Skipped []string `json:"skipped"`
}

// Service handles collection administration.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New creates a collection admin service.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Stats counts records per language. Empty languages means all supported ones.
// Missing collections count as empty.
func (s *Service) Stats(ctx context.Context, languages []domain.Language) (Stats, error) {
	var out Stats
	for _, lang := range orAll(languages) {
		ls := LanguageStats{Language: lang}
		for _, kind := range kinds {
			c := domain.NewCollection(lang, kind)
			info, err := s.repo.Info(ctx, c)
			if errors.Is(err, domain.ErrCollectionNotFound) {
				ls.Missing = append(ls.Missing, c.Name())
				continue
			}
			if err != nil {
				return Stats{}, fmt.Errorf("stats %s: %w", c.Name(), err)
			}
			if kind == domain.KindEntity {
				ls.Entities = info.Count
			} else {
				ls.Sentences = info.Count
			}
		}
		out.Languages = append(out.Languages, ls)
		out.TotalEntities += ls.Entities
		out.TotalSentences += ls.Sentences
	}
	return out, nil
}

// Cleanup drops the entity and sentence collections of each language.
// Collections that do not exist are skipped.
func (s *Service) Cleanup(ctx context.Context, languages []domain.Language) (CleanupReport, error) {
	rep := CleanupReport{Dropped: []string{}, Skipped: []string{}}
	for _, lang := range orAll(languages) {
		for _, kind := range kinds {
			c := domain.NewCollection(lang, kind)
			err := s.repo.Drop(ctx, c)
			if errors.Is(err, domain.ErrCollectionNotFound) {
				rep.Skipped = append(rep.Skipped, c.Name())
				continue
			}
			if err != nil {
				return rep, fmt.Errorf("drop %s: %w", c.Name(), err)
			}
			rep.Dropped = append(rep.Dropped, c.Name())
			s.logger.Info("Dropped collection", zap.String("collection", c.Name()))
		}
	}
	return rep, nil
}

func orAll(languages []domain.Language) []domain.Language {
	if len(languages) == 0 {
		return domain.AllLanguages()
	}
	return languages
}
