package nerprompt

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/transport/hashembed"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // memory, bolt, valkey, redis, milvus
	path     string
	addrs    []string
	password string

	embedder domain.Embedder

	vectorDimensions int
	metric           string
	hnswM            int
	hnswEFConstruct  int

	languages     []Language
	entityTypes   []EntityType
	topKEntities  int
	topKSentences int
	threshold     float64
	omitEmpty     bool
	batchSize     int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithMemory keeps all collections in process memory. This is the default.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "memory"
	})
}

// WithBolt persists collections in a single bbolt file.
func WithBolt(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "bolt"
		c.path = path
	})
}

// WithValkey configures the client to connect to a Valkey instance with valkey-search.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis configures the client to connect to a Redis 8+ instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithMilvus configures the client to connect to a Milvus server.
func WithMilvus(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "milvus"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithEmbedder sets the text embedding provider. Required unless WithHashEmbedder is used.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = &embedderAdapter{inner: e}
	})
}

// WithHashEmbedder uses the deterministic feature-hashing embedder (no network, no model).
// Also sets the vector dimension.
func WithHashEmbedder(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = hashembed.New(dim)
		c.vectorDimensions = dim
	})
}

// WithVectorDimensions sets the collection vector dimension. Must match the embedder.
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithMetric sets the distance metric: COSINE (default), L2 or IP.
func WithMetric(metric string) Option {
	return optionFunc(func(c *clientConfig) {
		c.metric = metric
	})
}

// WithHNSW switches collections to an HNSW index (M and EF construction).
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	})
}

// WithLanguages restricts ingestion and queries to the given languages.
func WithLanguages(langs ...Language) Option {
	return optionFunc(func(c *clientConfig) {
		c.languages = langs
	})
}

// WithEntityTypes restricts retrieval and rendering to the given types.
func WithEntityTypes(types ...EntityType) Option {
	return optionFunc(func(c *clientConfig) {
		c.entityTypes = types
	})
}

// WithTopK sets the default number of entities per type and example sentences.
func WithTopK(entities, sentences int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topKEntities = entities
		c.topKSentences = sentences
	})
}

// WithSimilarityThreshold drops hits scoring below threshold (0..1).
func WithSimilarityThreshold(threshold float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.threshold = threshold
	})
}

// WithOmitEmptyTypes leaves entity types without examples out of the instruction.
func WithOmitEmptyTypes() Option {
	return optionFunc(func(c *clientConfig) {
		c.omitEmpty = true
	})
}

// WithIngestBatchSize sets how many records are embedded per provider call.
func WithIngestBatchSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.batchSize = n
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
