package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/config"
	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/db/bolt"
	"github.com/kailas-cloud/nerprompt/internal/db/memory"
	"github.com/kailas-cloud/nerprompt/internal/db/milvus"
	"github.com/kailas-cloud/nerprompt/internal/db/valkey"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/metrics"
	collectionrepo "github.com/kailas-cloud/nerprompt/internal/repository/collection"
	"github.com/kailas-cloud/nerprompt/internal/repository/embcache"
	"github.com/kailas-cloud/nerprompt/internal/repository/record"
	searchrepo "github.com/kailas-cloud/nerprompt/internal/repository/search"
	"github.com/kailas-cloud/nerprompt/internal/transport/hashembed"
	openaiEmb "github.com/kailas-cloud/nerprompt/internal/transport/openai"
	batchuc "github.com/kailas-cloud/nerprompt/internal/usecase/batch"
	collectionuc "github.com/kailas-cloud/nerprompt/internal/usecase/collection"
	embeddinguc "github.com/kailas-cloud/nerprompt/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/nerprompt/internal/usecase/health"
	"github.com/kailas-cloud/nerprompt/internal/usecase/ingestion"
	"github.com/kailas-cloud/nerprompt/internal/usecase/instruction"
	"github.com/kailas-cloud/nerprompt/internal/usecase/retrieval"
)

// App is the composition root shared by all commands.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Store  db.Store

	Instructions *instruction.Service
	Batch        *batchuc.Service
	Ingestion    *ingestion.Service
	Collections  *collectionuc.Service
	Health       *healthuc.Service
}

// Close releases the store.
func (a *App) Close() {
	a.Store.Close()
}

// NewApp opens the configured store and wires every service on top of it.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	readiness := time.Duration(cfg.Storage.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, readiness); err != nil {
		store.Close()
		return nil, fmt.Errorf("store not ready: %w", err)
	}
	logger.Info("Connected to vector store",
		zap.String("mode", cfg.Storage.Mode),
		zap.String("driver", cfg.Storage.Driver),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	cache, err := cacheStore(cfg.Embedding.Cache, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	docEmbedder := buildEmbedder(cfg, cfg.Embedding.DocumentInstruction, cache, logger)
	queryEmbedder := buildEmbedder(cfg, cfg.Embedding.QueryInstruction, cache, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Vector.Dim),
		zap.String("cache", cfg.Embedding.Cache.Mode),
	)

	schema, err := vectorSchema(cfg.Vector)
	if err != nil {
		store.Close()
		return nil, err
	}
	collRepo := collectionrepo.New(store, schema)
	recordRepo := record.New(store)
	searchRepo := searchrepo.New(store)

	// Validated in config.Validate.
	languages, _ := cfg.Retrieval.ParsedLanguages()
	types, _ := cfg.Retrieval.ParsedEntityTypes()
	emptyTypes, _ := instruction.ParseEmptyTypePolicy(cfg.Instruction.EmptyTypes)

	retrievalSvc := retrieval.New(searchRepo, queryEmbedder, retrieval.Config{
		Languages:           languages,
		EntityTypes:         types,
		TopKEntities:        cfg.Retrieval.TopKEntities,
		TopKSentences:       cfg.Retrieval.TopKSentences,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		EmbeddingTimeout:    cfg.Retrieval.EmbeddingTimeout(),
		SearchTimeout:       cfg.Retrieval.SearchTimeout(),
		SearchConcurrency:   cfg.Retrieval.SearchConcurrency,
	}, logger)
	assembler := instruction.NewAssembler(instruction.Options{
		EntityTypes:        types,
		EmptyType:          emptyTypes,
		MaxEntitiesPerType: cfg.Instruction.MaxEntitiesPerType,
		MaxExamples:        cfg.Instruction.MaxExamples,
	})
	instructions := instruction.NewService(retrievalSvc, assembler)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		Instructions: instructions,
		Batch: batchuc.New(instructions, batchuc.Config{
			MaxBatchSize:    cfg.Batch.MaxBatchSize,
			Concurrency:     cfg.Batch.Concurrency,
			IncludeMetadata: cfg.Batch.IncludeMetadata,
		}, logger),
		Ingestion: ingestion.New(collRepo, recordRepo, docEmbedder, ingestion.Config{
			BatchSize: cfg.Ingestion.BatchSize,
			Languages: languages,
		}, logger),
		Collections: collectionuc.New(collRepo, logger),
		Health:      healthuc.New(store, newEmbeddingHealthChecker(queryEmbedder), 0),
	}, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil
	case config.DriverBolt:
		return bolt.Open(cfg.Path) //nolint:wrapcheck // wrapped by caller
	case config.DriverValkey, config.DriverRedis:
		return valkey.NewStore(valkey.Config{ //nolint:wrapcheck // wrapped by caller
			Addrs:     cfg.Addrs,
			Username:  cfg.Username,
			Password:  cfg.Password,
			DB:        cfg.DB,
			KeyPrefix: cfg.KeyPrefix,
		})
	case config.DriverMilvus:
		return milvus.NewStore(ctx, milvus.Config{ //nolint:wrapcheck // wrapped by caller
			Address:  cfg.Addrs[0],
			Username: cfg.Username,
			Password: cfg.Password,
			Database: cfg.Database,
			NProbe:   cfg.NProbe,
			EF:       cfg.EF,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// cacheStore returns nil when caching is disabled.
func cacheStore(cfg config.CacheConfig, store db.Store) (db.KVStore, error) {
	switch cfg.Mode {
	case config.CacheLRU:
		lru, err := embcache.NewLRUStore(cfg.Size)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		return lru, nil
	case config.CacheStore:
		kv, ok := store.(db.KVStore)
		if !ok {
			return nil, fmt.Errorf("embedding cache: store %T has no key-value support", store)
		}
		return kv, nil
	default:
		return nil, nil
	}
}

func vectorSchema(cfg config.VectorConfig) (collectionrepo.Schema, error) {
	metric, err := db.ParseDistanceMetric(cfg.Metric)
	if err != nil {
		return collectionrepo.Schema{}, fmt.Errorf("vector.metric: %w", err)
	}
	algo, err := db.ParseVectorAlgorithm(cfg.Index)
	if err != nil {
		return collectionrepo.Schema{}, fmt.Errorf("vector.index: %w", err)
	}
	return collectionrepo.Schema{
		Dim:         cfg.Dim,
		Metric:      metric,
		Algorithm:   algo,
		M:           cfg.HNSWM,
		EFConstruct: cfg.HNSWEFConstruct,
		NList:       cfg.NList,
	}, nil
}

// embedder is what ingestion and retrieval need from the decorator chain.
type embedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

// buildEmbedder assembles the decorator chain:
// provider -> cache -> retry -> instrumented -> instruction.
func buildEmbedder(cfg config.Config, instr string, cache db.KVStore, logger *zap.Logger) embedder {
	ec := cfg.Embedding

	var base embedder
	switch ec.Provider {
	case config.ProviderOpenAI:
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     ec.APIKey,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: cfg.Vector.Dim,
			User:       ec.User,
			Provider:   ec.Provider,
			Logger:     logger,
		})
	default:
		base = hashembed.New(cfg.Vector.Dim)
	}

	e := base
	if cache != nil {
		namespace := ec.Model
		if namespace == "" {
			namespace = fmt.Sprintf("%s-%d", ec.Provider, cfg.Vector.Dim)
		}
		e = embcache.New(e, cache, namespace, metrics.EmbeddingCacheTotal, logger)
	}

	e = embeddinguc.NewRetryingEmbedder(e, embeddinguc.RetryConfig{
		MaxRetries: ec.Retry.MaxRetries,
		Base:       time.Duration(ec.Retry.BaseMs) * time.Millisecond,
		Max:        time.Duration(ec.Retry.MaxMs) * time.Millisecond,
		Jitter:     time.Duration(ec.Retry.JitterMs) * time.Millisecond,
	}, openaiEmb.IsTransient, ec.Provider, logger)

	e = embeddinguc.NewInstrumentedEmbedder(e, ec.Provider, ec.Model, cfg.Vector.Dim, logger)

	// Outermost, so the cache key includes the instruction.
	if instr != "" {
		return domain.NewInstructionEmbedder(e, instr)
	}
	return e
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
