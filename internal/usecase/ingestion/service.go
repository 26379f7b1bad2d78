package ingestion

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/dataset"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/metrics"
)

// DefaultBatchSize is the number of records embedded and inserted per call.
const DefaultBatchSize = 64

// Config tunes ingestion.
type Config struct {
	BatchSize int
	Languages []domain.Language // ingest only these; empty means all
}

// Progress is reported after every batch.
type Progress struct {
	Language domain.Language
	Kind     domain.Kind
	Done     int
	Total    int
}

// ProgressFunc receives progress updates. It is called from the ingesting goroutine.
type ProgressFunc func(Progress)

// Service embeds parsed documents and writes them into per-language collections.
// Writes to one collection are serialized; different collections may be ingested concurrently.
type Service struct {
	colls   Collections
	records Records
	embed   domain.Embedder
	cfg     Config
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an ingestion service.
func New(colls Collections, records Records, embed domain.Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Service{
		colls:   colls,
		records: records,
		embed:   embed,
		cfg:     cfg,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// IngestEntities writes entity documents, one report per language.
// Entities are deduplicated on (text, type) within a language.
// The returned error covers fatal conditions only (cancellation, collection setup);
// rejected records are reported and surface through Report.Err.
func (s *Service) IngestEntities(ctx context.Context, doc dataset.Entities, progress ProgressFunc) ([]Report, error) {
	byLang := make(map[domain.Language][]dataset.Entity)
	for _, e := range doc.Items {
		byLang[e.Language] = append(byLang[e.Language], e)
	}
	reports, failures := s.initReports(domain.KindEntity, doc.Failures, langsOf(byLang))

	var errs []error
	for i := range reports {
		r := &reports[i]
		items := byLang[r.Language]
		r.Received += len(items)
		if len(items) == 0 {
			continue
		}
		unique := dedupEntities(r, items)
		s.count(r.Kind, r.Language, "duplicate", r.Duplicates)
		if err := s.ingestEntities(ctx, r, unique, progress); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	return append(reports, failures...), errors.Join(errs...)
}

// IngestSentences writes sentence documents, one report per language.
// Sentences are deduplicated on text within a language.
func (s *Service) IngestSentences(ctx context.Context, doc dataset.Sentences, progress ProgressFunc) ([]Report, error) {
	byLang := make(map[domain.Language][]dataset.Sentence)
	for _, st := range doc.Items {
		byLang[st.Language] = append(byLang[st.Language], st)
	}
	reports, failures := s.initReports(domain.KindSentence, doc.Failures, langsOf(byLang))

	var errs []error
	for i := range reports {
		r := &reports[i]
		items := byLang[r.Language]
		r.Received += len(items)
		if len(items) == 0 {
			continue
		}
		unique := dedupSentences(r, items)
		s.count(r.Kind, r.Language, "duplicate", r.Duplicates)
		if err := s.ingestSentences(ctx, r, unique, progress); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	return append(reports, failures...), errors.Join(errs...)
}

func (s *Service) ingestEntities(ctx context.Context, r *Report, items []dataset.Entity, progress ProgressFunc) error {
	unlock := s.lock(domain.NewCollection(r.Language, domain.KindEntity))
	defer unlock()

	h, err := s.colls.Ensure(ctx, domain.NewCollection(r.Language, domain.KindEntity))
	if err != nil {
		for _, it := range items {
			r.fail(dataset.Failure{Language: string(r.Language), Ref: it.Ref, Text: it.Text, Reason: err.Error()})
		}
		s.count(r.Kind, r.Language, "failed", len(items))
		return fmt.Errorf("ensure entity collection %s: %w", r.Language, err)
	}

	for start := 0; start < len(items); start += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingest entities %s: %w", r.Language, err)
		}
		chunk := items[start:min(start+s.cfg.BatchSize, len(items))]

		texts := make([]string, len(chunk))
		for i, it := range chunk {
			texts[i] = it.Text
		}
		vecs, err := s.embedChunk(ctx, texts)
		if err != nil {
			s.failChunk(r, entityRefs(chunk), err)
		} else {
			recs := make([]domain.EntityRecord, len(chunk))
			for i, it := range chunk {
				recs[i] = domain.EntityRecord{Text: it.Text, Type: it.Type, Embedding: vecs[i]}
			}
			rep, err := s.records.InsertEntities(ctx, h, recs)
			s.applyInsert(r, entityRefs(chunk), rep, err)
		}

		if progress != nil {
			progress(Progress{Language: r.Language, Kind: r.Kind, Done: start + len(chunk), Total: len(items)})
		}
	}
	s.logDone(r)
	return nil
}

func (s *Service) ingestSentences(ctx context.Context, r *Report, items []dataset.Sentence, progress ProgressFunc) error {
	unlock := s.lock(domain.NewCollection(r.Language, domain.KindSentence))
	defer unlock()

	h, err := s.colls.Ensure(ctx, domain.NewCollection(r.Language, domain.KindSentence))
	if err != nil {
		for _, it := range items {
			r.fail(dataset.Failure{Language: string(r.Language), Ref: it.Ref, Text: it.Text, Reason: err.Error()})
		}
		s.count(r.Kind, r.Language, "failed", len(items))
		return fmt.Errorf("ensure sentence collection %s: %w", r.Language, err)
	}

	for start := 0; start < len(items); start += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingest sentences %s: %w", r.Language, err)
		}
		chunk := items[start:min(start+s.cfg.BatchSize, len(items))]

		texts := make([]string, len(chunk))
		for i, it := range chunk {
			texts[i] = it.Text
		}
		vecs, err := s.embedChunk(ctx, texts)
		if err != nil {
			s.failChunk(r, sentenceRefs(chunk), err)
		} else {
			recs := make([]domain.SentenceRecord, len(chunk))
			for i, it := range chunk {
				recs[i] = domain.SentenceRecord{Text: it.Text, Labels: it.Labels, Embedding: vecs[i]}
			}
			rep, err := s.records.InsertSentences(ctx, h, recs)
			s.applyInsert(r, sentenceRefs(chunk), rep, err)
		}

		if progress != nil {
			progress(Progress{Language: r.Language, Kind: r.Kind, Done: start + len(chunk), Total: len(items)})
		}
	}
	s.logDone(r)
	return nil
}

func (s *Service) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := domain.EmbedBatch(ctx, s.embed, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			domain.ErrEmbeddingFailure, len(res.Embeddings), len(texts))
	}
	return res.Embeddings, nil
}

type itemRef struct {
	ref  string
	text string
}

func (s *Service) failChunk(r *Report, refs []itemRef, err error) {
	s.logger.Warn("Ingestion batch failed",
		zap.String("language", string(r.Language)),
		zap.String("kind", string(r.Kind)),
		zap.Int("batch_size", len(refs)),
		zap.Error(err),
	)
	for _, it := range refs {
		r.fail(dataset.Failure{Language: string(r.Language), Ref: it.ref, Text: it.text, Reason: err.Error()})
	}
	s.count(r.Kind, r.Language, "failed", len(refs))
}

func (s *Service) applyInsert(r *Report, refs []itemRef, rep domain.InsertReport, err error) {
	if err != nil && len(rep.Failures) == 0 {
		s.failChunk(r, refs, err)
		return
	}
	if err != nil {
		s.logger.Warn("Ingestion insert failed",
			zap.String("language", string(r.Language)),
			zap.String("kind", string(r.Kind)),
			zap.Error(err),
		)
	}
	inserted := rep.Inserted()
	r.Inserted += inserted
	for _, f := range rep.Failures {
		it := refs[f.Index]
		r.fail(dataset.Failure{Language: string(r.Language), Ref: it.ref, Text: it.text, Reason: f.Reason})
	}
	s.count(r.Kind, r.Language, "inserted", inserted)
	s.count(r.Kind, r.Language, "failed", len(rep.Failures))
}

func (s *Service) initReports(
	kind domain.Kind, parseFailures []dataset.Failure, langs []domain.Language,
) ([]Report, []Report) {
	enabled := func(l domain.Language) bool {
		return len(s.cfg.Languages) == 0 || slices.Contains(s.cfg.Languages, l)
	}

	var reports []Report
	index := make(map[domain.Language]int)
	add := func(l domain.Language) {
		if _, ok := index[l]; !ok {
			index[l] = len(reports)
			reports = append(reports, Report{Language: l, Kind: kind})
		}
	}
	for _, l := range langs {
		if enabled(l) {
			add(l)
		}
	}

	// parse failures of unknown languages get their own report
	var unknown []Report
	unknownIdx := make(map[string]int)
	for _, f := range parseFailures {
		lang, err := domain.ParseLanguage(f.Language)
		if err != nil {
			i, ok := unknownIdx[f.Language]
			if !ok {
				i = len(unknown)
				unknownIdx[f.Language] = i
				unknown = append(unknown, Report{Language: domain.Language(f.Language), Kind: kind})
			}
			unknown[i].Received++
			unknown[i].fail(f)
			continue
		}
		if !enabled(lang) {
			continue
		}
		add(lang)
		r := &reports[index[lang]]
		r.Received++
		r.fail(f)
		s.count(kind, lang, "failed", 1)
	}
	slices.SortStableFunc(reports, func(a, b Report) int { return langRank(a.Language) - langRank(b.Language) })
	return reports, unknown
}

func (s *Service) lock(c domain.Collection) func() {
	s.mu.Lock()
	m, ok := s.locks[c.Name()]
	if !ok {
		m = &sync.Mutex{}
		s.locks[c.Name()] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *Service) count(kind domain.Kind, lang domain.Language, result string, n int) {
	if n > 0 {
		metrics.IngestionRecordsTotal.WithLabelValues(string(kind), string(lang), result).Add(float64(n))
	}
}

func (s *Service) logDone(r *Report) {
	s.logger.Info("Ingested collection",
		zap.String("language", string(r.Language)),
		zap.String("kind", string(r.Kind)),
		zap.Int("received", r.Received),
		zap.Int("duplicates", r.Duplicates),
		zap.Int("inserted", r.Inserted),
		zap.Int("failed", r.Failed),
	)
}

func dedupEntities(r *Report, items []dataset.Entity) []dataset.Entity {
	type key struct {
		text string
		t    domain.EntityType
	}
	seen := make(map[key]bool, len(items))
	out := make([]dataset.Entity, 0, len(items))
	for _, it := range items {
		k := key{it.Text, it.Type}
		if seen[k] {
			r.Duplicates++
			continue
		}
		seen[k] = true
		out = append(out, it)
	}
	return out
}

func dedupSentences(r *Report, items []dataset.Sentence) []dataset.Sentence {
	seen := make(map[string]bool, len(items))
	out := make([]dataset.Sentence, 0, len(items))
	for _, it := range items {
		if seen[it.Text] {
			r.Duplicates++
			continue
		}
		seen[it.Text] = true
		out = append(out, it)
	}
	return out
}

func entityRefs(items []dataset.Entity) []itemRef {
	out := make([]itemRef, len(items))
	for i, it := range items {
		out[i] = itemRef{ref: it.Ref, text: it.Text}
	}
	return out
}

func sentenceRefs(items []dataset.Sentence) []itemRef {
	out := make([]itemRef, len(items))
	for i, it := range items {
		out[i] = itemRef{ref: it.Ref, text: it.Text}
	}
	return out
}

func langsOf[T any](m map[domain.Language][]T) []domain.Language {
	out := make([]domain.Language, 0, len(m))
	for _, l := range domain.AllLanguages() {
		if _, ok := m[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

func langRank(l domain.Language) int {
	return slices.Index(domain.AllLanguages(), l)
}
