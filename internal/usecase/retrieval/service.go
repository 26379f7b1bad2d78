package retrieval

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/metrics"
)

// Service is the retrieval engine: one embedding per query, then one sentence
// search and one search per entity type, fanned out concurrently.
type Service struct {
	search Searcher
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

// New creates a retrieval service.
func New(search Searcher, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	return &Service{search: search, embed: embed, cfg: cfg.withDefaults(), logger: logger}
}

// EntityTypes returns the searched entity types in canonical order.
func (s *Service) EntityTypes() []domain.EntityType {
	return slices.Clone(s.cfg.EntityTypes)
}

// Retrieve runs one query. Embedding failures and sentence search failures are
// fatal; a failing entity type degrades to an empty list with a warning.
func (s *Service) Retrieve(ctx context.Context, q domain.Query) (domain.RetrievalResult, error) {
	start := time.Now()

	text, lang, err := s.validate(q)
	if err != nil {
		return domain.RetrievalResult{}, err
	}
	topKEntities := q.TopKEntities
	if topKEntities == 0 {
		topKEntities = s.cfg.TopKEntities
	}
	topKSentences := q.TopKSentences
	if topKSentences == 0 {
		topKSentences = s.cfg.TopKSentences
	}

	embCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbeddingTimeout)
	emb, err := s.embed.Embed(embCtx, text)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return domain.RetrievalResult{}, err
		}
		return domain.RetrievalResult{}, fmt.Errorf("embed query: %w", asEmbeddingFailure(err))
	}
	vec := emb.Embedding

	var (
		mu        sync.Mutex
		sentences []domain.SentenceHit
		warnings  []domain.Warning
		entities  = make(map[domain.EntityType][]domain.EntityHit, len(s.cfg.EntityTypes))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SearchConcurrency)

	g.Go(func() error {
		hits, err := s.searchSentences(gctx, domain.NewCollection(lang, domain.KindSentence), vec, topKSentences)
		if err != nil {
			return err
		}
		hits, w := dropUnreadable(hits)
		hits = truncate(hits, topKSentences)
		mu.Lock()
		defer mu.Unlock()
		sentences = hits
		if w != nil {
			warnings = append(warnings, *w)
			metrics.RetrievalDegradedTotal.WithLabelValues(string(domain.SectionSentences)).Inc()
			s.logger.Warn("Similar sentences skipped",
				zap.String("language", string(lang)),
				zap.String("reason", w.Message),
			)
		}
		return nil
	})

	for _, t := range s.cfg.EntityTypes {
		g.Go(func() error {
			hits, err := s.searchEntities(gctx, domain.NewCollection(lang, domain.KindEntity), vec, topKEntities, t)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				entities[t] = []domain.EntityHit{}
				warnings = append(warnings, domain.Warning{
					Section:    domain.SectionEntities,
					EntityType: t,
					Kind:       domain.KindOf(err),
					Message:    err.Error(),
				})
				metrics.RetrievalDegradedTotal.WithLabelValues(string(domain.SectionEntities)).Inc()
				s.logger.Warn("Entity search degraded",
					zap.String("language", string(lang)),
					zap.String("entity_type", string(t)),
					zap.Error(err),
				)
				return nil
			}
			entities[t] = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.RetrievalResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("retrieve: %w", err)
	}

	if sentences == nil {
		sentences = []domain.SentenceHit{}
	}
	slices.SortFunc(warnings, func(a, b domain.Warning) int { return a.EntityType.Rank() - b.EntityType.Rank() })

	res := domain.RetrievalResult{
		Query:     text,
		Language:  lang,
		Sentences: sentences,
		Entities:  entities,
	}
	res.Stats = s.statistics(res, warnings, time.Since(start))
	metrics.RetrievalDuration.WithLabelValues(string(lang)).Observe(res.Stats.Duration.Seconds())
	return res, nil
}

func (s *Service) validate(q domain.Query) (string, domain.Language, error) {
	text, err := domain.NormalizeText(q.Text)
	if err != nil {
		return "", "", err
	}
	lang, err := domain.ParseLanguage(string(q.Language))
	if err != nil {
		return "", "", err
	}
	if !slices.Contains(s.cfg.Languages, lang) {
		return "", "", domain.NewInvalidInput("language", "language "+string(lang)+" is not enabled")
	}
	if q.TopKEntities < 0 {
		return "", "", domain.NewInvalidInput("top_k_entities", "must be positive")
	}
	if q.TopKSentences < 0 {
		return "", "", domain.NewInvalidInput("top_k_sentences", "must be positive")
	}
	return text, lang, nil
}

// searchSentences treats a missing sentence collection as empty.
func (s *Service) searchSentences(
	ctx context.Context, c domain.Collection, vec []float32, k int,
) ([]domain.SentenceHit, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	defer cancel()

	hits, err := s.search.SearchSentences(ctx, c, vec, k)
	switch {
	case errors.Is(err, domain.ErrCollectionNotFound):
		metrics.RetrievalSearchesTotal.WithLabelValues(string(domain.KindSentence), "not_found").Inc()
		return []domain.SentenceHit{}, nil
	case err != nil:
		metrics.RetrievalSearchesTotal.WithLabelValues(string(domain.KindSentence), "error").Inc()
		return nil, fmt.Errorf("sentence search %s: %w", c, err)
	}
	metrics.RetrievalSearchesTotal.WithLabelValues(string(domain.KindSentence), "ok").Inc()
	return filterSentences(hits, s.cfg.SimilarityThreshold), nil
}

// dropUnreadable removes hits whose stored labels could not be decoded and
// reports them as one sentences warning.
func dropUnreadable(hits []domain.SentenceHit) ([]domain.SentenceHit, *domain.Warning) {
	var first error
	dropped := 0
	kept := hits[:0:0]
	for _, h := range hits {
		if h.LabelsErr != nil {
			if first == nil {
				first = h.LabelsErr
			}
			dropped++
			continue
		}
		kept = append(kept, h)
	}
	if dropped == 0 {
		return hits, nil
	}
	return kept, &domain.Warning{
		Section: domain.SectionSentences,
		Kind:    domain.KindOf(first),
		Message: fmt.Sprintf("%d similar sentences skipped: %v", dropped, first),
	}
}

func (s *Service) searchEntities(
	ctx context.Context, c domain.Collection, vec []float32, k int, t domain.EntityType,
) ([]domain.EntityHit, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	defer cancel()

	hits, err := s.search.SearchEntities(ctx, c, vec, k, t)
	if err != nil {
		status := "error"
		if errors.Is(err, domain.ErrCollectionNotFound) {
			status = "not_found"
		}
		metrics.RetrievalSearchesTotal.WithLabelValues(string(domain.KindEntity), status).Inc()
		return nil, fmt.Errorf("entity search %s/%s: %w", c, t, err)
	}
	metrics.RetrievalSearchesTotal.WithLabelValues(string(domain.KindEntity), "ok").Inc()
	return filterEntities(truncate(hits, k), s.cfg.SimilarityThreshold), nil
}

func (s *Service) statistics(
	res domain.RetrievalResult, warnings []domain.Warning, d time.Duration,
) domain.Statistics {
	stats := domain.Statistics{
		PerTypeCounts:    make(map[domain.EntityType]int, len(res.Entities)),
		EntityTypesFound: []domain.EntityType{},
		SentenceCount:    len(res.Sentences),
		Warnings:         warnings,
		Duration:         d,
	}
	if stats.Warnings == nil {
		stats.Warnings = []domain.Warning{}
	}
	for _, t := range s.cfg.EntityTypes {
		n := len(res.Entities[t])
		stats.PerTypeCounts[t] = n
		stats.TotalEntitiesFound += n
		if n > 0 {
			stats.EntityTypesFound = append(stats.EntityTypesFound, t)
		}
	}
	return stats
}

func truncate[T any](hits []T, k int) []T {
	if len(hits) > k {
		return hits[:k]
	}
	return hits
}

func filterEntities(hits []domain.EntityHit, threshold float64) []domain.EntityHit {
	out := make([]domain.EntityHit, 0, len(hits))
	for _, h := range hits {
		if threshold <= 0 || h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out
}

func filterSentences(hits []domain.SentenceHit, threshold float64) []domain.SentenceHit {
	out := make([]domain.SentenceHit, 0, len(hits))
	for _, h := range hits {
		if threshold <= 0 || h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out
}

func asEmbeddingFailure(err error) error {
	if errors.Is(err, domain.ErrEmbeddingFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, err)
}
