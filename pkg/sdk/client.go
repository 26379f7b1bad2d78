package nerprompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/dataset"
	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/db/bolt"
	"github.com/kailas-cloud/nerprompt/internal/db/memory"
	"github.com/kailas-cloud/nerprompt/internal/db/milvus"
	"github.com/kailas-cloud/nerprompt/internal/db/valkey"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	dombatch "github.com/kailas-cloud/nerprompt/internal/domain/batch"
	collectionrepo "github.com/kailas-cloud/nerprompt/internal/repository/collection"
	"github.com/kailas-cloud/nerprompt/internal/repository/record"
	searchrepo "github.com/kailas-cloud/nerprompt/internal/repository/search"
	batchuc "github.com/kailas-cloud/nerprompt/internal/usecase/batch"
	collectionuc "github.com/kailas-cloud/nerprompt/internal/usecase/collection"
	embeddinguc "github.com/kailas-cloud/nerprompt/internal/usecase/embedding"
	"github.com/kailas-cloud/nerprompt/internal/usecase/ingestion"
	"github.com/kailas-cloud/nerprompt/internal/usecase/instruction"
	"github.com/kailas-cloud/nerprompt/internal/usecase/retrieval"
)

const defaultReadinessTimeout = 10 * time.Second

// Внутренние интерфейсы для подмены в тестах.
type instructionUseCase interface {
	Build(ctx context.Context, q domain.Query, withDetails bool) (instruction.Output, error)
}

type batchUseCase interface {
	Run(ctx context.Context, queries []domain.Query, withDetails bool) []dombatch.Result[instruction.Output]
}

type ingestionUseCase interface {
	IngestEntities(ctx context.Context, doc dataset.Entities, progress ingestion.ProgressFunc) ([]ingestion.Report, error)
	IngestSentences(ctx context.Context, doc dataset.Sentences, progress ingestion.ProgressFunc) ([]ingestion.Report, error)
}

type collectionUseCase interface {
	Stats(ctx context.Context, languages []domain.Language) (collectionuc.Stats, error)
	Cleanup(ctx context.Context, languages []domain.Language) (collectionuc.CleanupReport, error)
}

// Client is the nerprompt SDK entry point.
type Client struct {
	store        db.Store
	instructions instructionUseCase
	batch        batchUseCase
	ingest       ingestionUseCase
	colls        collectionUseCase
	obs          *observer
}

// New creates a Client and connects to the store.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{driver: "memory"}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.embedder == nil {
		return nil, errors.New("nerprompt: embedder required (use WithEmbedder or WithHashEmbedder)")
	}
	if cfg.vectorDimensions <= 0 {
		return nil, errors.New("nerprompt: vector dimension required (use WithVectorDimensions)")
	}
	schema, err := schemaOf(cfg)
	if err != nil {
		return nil, err
	}
	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := createStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("nerprompt: store not ready: %w", err)
	}

	return wireClient(store, schema, cfg, obs), nil
}

func createStore(ctx context.Context, cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "memory":
		return memory.NewStore(), nil
	case "bolt":
		s, err := bolt.Open(cfg.path)
		if err != nil {
			return nil, fmt.Errorf("nerprompt: open bolt store: %w", err)
		}
		return s, nil
	case "valkey", "redis":
		s, err := valkey.NewStore(valkey.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("nerprompt: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	case "milvus":
		s, err := milvus.NewStore(ctx, milvus.Config{
			Address:  cfg.addrs[0],
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("nerprompt: create milvus store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("nerprompt: unknown driver %q", cfg.driver)
	}
}

func schemaOf(cfg *clientConfig) (collectionrepo.Schema, error) {
	metric, err := db.ParseDistanceMetric(cfg.metric)
	if err != nil {
		return collectionrepo.Schema{}, fmt.Errorf("nerprompt: %w", err)
	}
	s := collectionrepo.Schema{Dim: cfg.vectorDimensions, Metric: metric, Algorithm: db.VectorFlat}
	if cfg.hnswM > 0 || cfg.hnswEFConstruct > 0 {
		s.Algorithm = db.VectorHNSW
		s.M = cfg.hnswM
		s.EFConstruct = cfg.hnswEFConstruct
	}
	return s, nil
}

func wireClient(store db.Store, schema collectionrepo.Schema, cfg *clientConfig, obs *observer) *Client {
	// Внутренние сервисы логируют через zap; SDK отдаёт наружу только slog.
	logger := zap.NewNop()

	embedder := embeddinguc.NewInstrumentedEmbedder(cfg.embedder, "sdk", "", cfg.vectorDimensions, logger)

	collRepo := collectionrepo.New(store, schema)
	retrievalSvc := retrieval.New(searchrepo.New(store), embedder, retrieval.Config{
		Languages:           cfg.languages,
		EntityTypes:         cfg.entityTypes,
		TopKEntities:        cfg.topKEntities,
		TopKSentences:       cfg.topKSentences,
		SimilarityThreshold: cfg.threshold,
	}, logger)

	emptyType := instruction.EmptyTypeEmit
	if cfg.omitEmpty {
		emptyType = instruction.EmptyTypeOmit
	}
	instructions := instruction.NewService(retrievalSvc, instruction.NewAssembler(instruction.Options{
		EntityTypes: cfg.entityTypes,
		EmptyType:   emptyType,
	}))

	return &Client{
		store:        store,
		instructions: instructions,
		batch:        batchuc.New(instructions, batchuc.Config{}, logger),
		ingest: ingestion.New(collRepo, record.New(store), embedder, ingestion.Config{
			BatchSize: cfg.batchSize,
			Languages: cfg.languages,
		}, logger),
		colls: collectionuc.New(collRepo, logger),
		obs:   obs,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	ctx, op := c.obs.start(ctx, "ping")
	defer func() { op.end(err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Query builds the instruction for q.
func (c *Client) Query(ctx context.Context, q Query) (Output, error) {
	return c.query(ctx, "query", q, false)
}

// QueryWithDetails is Query plus the raw sentence and entity hits.
func (c *Client) QueryWithDetails(ctx context.Context, q Query) (Output, error) {
	return c.query(ctx, "query_details", q, true)
}

func (c *Client) query(ctx context.Context, name string, q Query, details bool) (out Output, err error) {
	ctx, op := c.obs.start(ctx, name)
	defer func() {
		op.end(err,
			slog.String("language", string(q.Language)),
			slog.Int("warnings", len(out.Statistics.Warnings)),
		)
	}()

	out, err = c.instructions.Build(ctx, q, details)
	if err != nil {
		return Output{}, fmt.Errorf("query: %w", err)
	}
	return out, nil
}

// QueryBatch answers every query independently; results keep input order.
func (c *Client) QueryBatch(ctx context.Context, queries []Query) []BatchResult {
	ctx, op := c.obs.start(ctx, "query_batch")

	results := c.batch.Run(ctx, queries, false)
	out := make([]BatchResult, len(results))
	for _, r := range results {
		i, err := strconv.Atoi(r.ID())
		if err != nil || i < 0 || i >= len(out) {
			continue
		}
		out[i] = BatchResult{Output: r.Value(), Err: r.Err()}
	}

	succeeded, failed := dombatch.Count(results)
	op.end(nil, slog.Int("succeeded", succeeded), slog.Int("failed", failed))
	return out
}

// IngestEntities reads an entity document ({"en": {"PERSON": ["..."]}}) and stores it.
// A non-nil error with reports means some items were rejected (ErrPartialIngestionFailure).
func (c *Client) IngestEntities(ctx context.Context, r io.Reader) (reports []IngestReport, err error) {
	ctx, op := c.obs.start(ctx, "ingest_entities")
	defer func() { op.end(err, ingestAttrs(reports)...) }()

	doc, err := dataset.ParseEntities(r)
	if err != nil {
		return nil, fmt.Errorf("ingest entities: %w", err)
	}
	reports, err = c.ingest.IngestEntities(ctx, doc, nil)
	if err != nil {
		return reports, fmt.Errorf("ingest entities: %w", err)
	}
	return reports, ingestion.Err(reports)
}

// IngestSentences reads a sentence document ({"en": [{"sentence": "...", "ner_labels": {...}}]}).
func (c *Client) IngestSentences(ctx context.Context, r io.Reader) (reports []IngestReport, err error) {
	ctx, op := c.obs.start(ctx, "ingest_sentences")
	defer func() { op.end(err, ingestAttrs(reports)...) }()

	doc, err := dataset.ParseSentences(r)
	if err != nil {
		return nil, fmt.Errorf("ingest sentences: %w", err)
	}
	reports, err = c.ingest.IngestSentences(ctx, doc, nil)
	if err != nil {
		return reports, fmt.Errorf("ingest sentences: %w", err)
	}
	return reports, ingestion.Err(reports)
}

func ingestAttrs(reports []IngestReport) []slog.Attr {
	received, duplicates, inserted, failed := ingestion.Totals(reports)
	return []slog.Attr{
		slog.Int("received", received),
		slog.Int("duplicates", duplicates),
		slog.Int("inserted", inserted),
		slog.Int("failed", failed),
	}
}

// Stats counts records per language. No languages means all.
func (c *Client) Stats(ctx context.Context, languages ...Language) (s Stats, err error) {
	ctx, op := c.obs.start(ctx, "stats")
	defer func() { op.end(err) }()

	s, err = c.colls.Stats(ctx, languages)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return s, nil
}

// Cleanup drops the collections of the given languages. No languages means all.
func (c *Client) Cleanup(ctx context.Context, languages ...Language) (rep CleanupReport, err error) {
	ctx, op := c.obs.start(ctx, "cleanup")
	defer func() { op.end(err, slog.Int("dropped", len(rep.Dropped))) }()

	rep, err = c.colls.Cleanup(ctx, languages)
	if err != nil {
		return CleanupReport{}, fmt.Errorf("cleanup: %w", err)
	}
	return rep, nil
}
