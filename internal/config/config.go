package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// Storage modes.
const (
	ModeLocal     = "local"
	ModeNetworked = "networked"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverBolt   = "bolt"
	DriverValkey = "valkey"
	DriverRedis  = "redis"
	DriverMilvus = "milvus"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// Embedding cache modes.
const (
	CacheNone  = "none"
	CacheLRU   = "lru"
	CacheStore = "store" // KV of the storage backend (bolt, valkey)
)

// Config holds the nerprompt configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	Vector      VectorConfig      `yaml:"vector"`
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Instruction InstructionConfig `yaml:"instruction"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Batch       BatchConfig       `yaml:"batch"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int64 `yaml:"max_body_bytes"`
}

// VectorConfig describes the vector column shared by all collections.
type VectorConfig struct {
	Dim             int    `yaml:"dim"`
	Metric          string `yaml:"metric"` // COSINE, L2, IP
	Index           string `yaml:"index"`  // FLAT, HNSW, IVF_FLAT
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	NList           int    `yaml:"nlist"`
}

// StorageConfig selects and connects the vector backend.
type StorageConfig struct {
	Mode             string   `yaml:"mode"`   // local, networked
	Driver           string   `yaml:"driver"` // memory, bolt | valkey, redis, milvus
	Path             string   `yaml:"path"`   // bolt file
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	Database         string   `yaml:"database"` // milvus database name
	DB               int      `yaml:"db"`       // valkey logical db
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	NProbe           int      `yaml:"nprobe"`
	EF               int      `yaml:"ef"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	Provider            string      `yaml:"provider"` // openai, hash
	APIKey              string      `yaml:"api_key"`
	BaseURL             string      `yaml:"base_url"`
	Model               string      `yaml:"model"`
	User                string      `yaml:"user"`
	DocumentInstruction string      `yaml:"document_instruction"`
	QueryInstruction    string      `yaml:"query_instruction"`
	Cache               CacheConfig `yaml:"cache"`
	Retry               RetryConfig `yaml:"retry"`
}

// CacheConfig controls the embedding cache.
type CacheConfig struct {
	Mode string `yaml:"mode"` // none, lru, store
	Size int    `yaml:"size"` // lru entries
}

// RetryConfig controls provider retries.
type RetryConfig struct {
	MaxRetries uint64 `yaml:"max_retries"`
	BaseMs     int    `yaml:"base_ms"`
	MaxMs      int    `yaml:"max_ms"`
	JitterMs   int    `yaml:"jitter_ms"`
}

// RetrievalConfig tunes the retrieval engine.
type RetrievalConfig struct {
	Languages           []string `yaml:"languages"`
	EntityTypes         []string `yaml:"entity_types"`
	TopKEntities        int      `yaml:"top_k_entities"`
	TopKSentences       int      `yaml:"top_k_sentences"`
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	EmbeddingTimeoutSec int      `yaml:"embedding_timeout_sec"`
	SearchTimeoutSec    int      `yaml:"search_timeout_sec"`
	SearchConcurrency   int      `yaml:"search_concurrency"`
}

// InstructionConfig tunes instruction rendering.
type InstructionConfig struct {
	EmptyTypes         string `yaml:"empty_types"` // emit, omit
	MaxEntitiesPerType int    `yaml:"max_entities_per_type"`
	MaxExamples        int    `yaml:"max_examples"`
}

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// BatchConfig tunes batch query processing.
type BatchConfig struct {
	MaxBatchSize    int    `yaml:"max_batch_size"`
	Concurrency     int    `yaml:"concurrency"`
	InputField      string `yaml:"input_field"`
	OutputDir       string `yaml:"output_dir"`
	IncludeMetadata bool   `yaml:"include_metadata"`
}

// Load reads configuration from a YAML file by environment name (local, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 32 << 20
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderHash
	}
	if c.Vector.Dim <= 0 && c.Embedding.Provider == ProviderHash {
		c.Vector.Dim = 256
	}
	if c.Vector.Metric == "" {
		c.Vector.Metric = string(db.DistanceCosine)
	}
	if c.Vector.Index == "" {
		c.Vector.Index = string(db.VectorFlat)
	}
	if c.Vector.HNSWM <= 0 {
		c.Vector.HNSWM = 32
	}
	if c.Vector.HNSWEFConstruct <= 0 {
		c.Vector.HNSWEFConstruct = 400
	}
	if c.Vector.NList <= 0 {
		c.Vector.NList = 1024
	}

	if c.Storage.Mode == "" {
		c.Storage.Mode = ModeLocal
	}
	if c.Storage.Driver == "" {
		if c.Storage.Mode == ModeNetworked {
			c.Storage.Driver = DriverValkey
		} else {
			c.Storage.Driver = DriverMemory
		}
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "nerprompt:"
	}
	if c.Storage.ReadinessTimeout <= 0 {
		c.Storage.ReadinessTimeout = 10
	}
	if c.Storage.NProbe <= 0 {
		c.Storage.NProbe = 10
	}

	if c.Embedding.Cache.Mode == "" {
		c.Embedding.Cache.Mode = CacheLRU
	}
	if c.Embedding.Cache.Size <= 0 {
		c.Embedding.Cache.Size = 10000
	}
	if c.Embedding.Retry.BaseMs <= 0 {
		c.Embedding.Retry.BaseMs = 200
	}
	if c.Embedding.Retry.MaxMs <= 0 {
		c.Embedding.Retry.MaxMs = 5000
	}

	if c.Retrieval.TopKEntities <= 0 {
		c.Retrieval.TopKEntities = 5
	}
	if c.Retrieval.TopKSentences <= 0 {
		c.Retrieval.TopKSentences = 5
	}
	if c.Retrieval.EmbeddingTimeoutSec <= 0 {
		c.Retrieval.EmbeddingTimeoutSec = 30
	}
	if c.Retrieval.SearchTimeoutSec <= 0 {
		c.Retrieval.SearchTimeoutSec = 10
	}
	if c.Retrieval.SearchConcurrency <= 0 {
		c.Retrieval.SearchConcurrency = 9
	}

	if c.Instruction.EmptyTypes == "" {
		c.Instruction.EmptyTypes = "emit"
	}
	if c.Instruction.MaxEntitiesPerType <= 0 {
		c.Instruction.MaxEntitiesPerType = 5
	}
	if c.Instruction.MaxExamples <= 0 {
		c.Instruction.MaxExamples = 5
	}

	if c.Ingestion.BatchSize <= 0 {
		c.Ingestion.BatchSize = 64
	}

	if c.Batch.MaxBatchSize <= 0 {
		c.Batch.MaxBatchSize = 100
	}
	if c.Batch.Concurrency <= 0 {
		c.Batch.Concurrency = 4
	}
	if c.Batch.InputField == "" {
		c.Batch.InputField = "input"
	}
	if c.Batch.OutputDir == "" {
		c.Batch.OutputDir = "data/output"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Vector.Dim <= 0 {
		return fmt.Errorf("vector.dim must be positive, got %d", c.Vector.Dim)
	}
	if _, err := db.ParseDistanceMetric(c.Vector.Metric); err != nil {
		return fmt.Errorf("vector.metric: %w", err)
	}
	if _, err := db.ParseVectorAlgorithm(c.Vector.Index); err != nil {
		return fmt.Errorf("vector.index: %w", err)
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Embedding.validate(c.Storage.Driver); err != nil {
		return err
	}
	if _, err := c.Retrieval.ParsedLanguages(); err != nil {
		return fmt.Errorf("retrieval.languages: %w", err)
	}
	if _, err := c.Retrieval.ParsedEntityTypes(); err != nil {
		return fmt.Errorf("retrieval.entity_types: %w", err)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be within [0, 1], got %v",
			c.Retrieval.SimilarityThreshold)
	}
	switch c.Instruction.EmptyTypes {
	case "emit", "omit":
	default:
		return fmt.Errorf("instruction.empty_types must be \"emit\" or \"omit\", got %q", c.Instruction.EmptyTypes)
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Mode {
	case ModeLocal:
		switch s.Driver {
		case DriverMemory:
		case DriverBolt:
			if s.Path == "" {
				return errors.New("storage.path is required for the bolt driver")
			}
		default:
			return fmt.Errorf("storage.driver %q is not a local driver (memory, bolt)", s.Driver)
		}
	case ModeNetworked:
		switch s.Driver {
		case DriverValkey, DriverRedis, DriverMilvus:
		default:
			return fmt.Errorf("storage.driver %q is not a networked driver (valkey, redis, milvus)", s.Driver)
		}
		if len(s.Addrs) == 0 {
			return errors.New("storage.addrs is required in networked mode")
		}
	default:
		return fmt.Errorf("storage.mode must be %q or %q, got %q", ModeLocal, ModeNetworked, s.Mode)
	}
	return nil
}

func (e *EmbeddingConfig) validate(driver string) error {
	switch e.Provider {
	case ProviderHash:
	case ProviderOpenAI:
		if e.Model == "" {
			return errors.New("embedding.model is required for the openai provider")
		}
	default:
		return fmt.Errorf("embedding.provider must be %q or %q, got %q", ProviderOpenAI, ProviderHash, e.Provider)
	}
	switch e.Cache.Mode {
	case CacheNone, CacheLRU:
	case CacheStore:
		if driver == DriverMemory || driver == DriverMilvus {
			return fmt.Errorf("embedding.cache.mode %q needs a key-value capable driver (bolt, valkey, redis), got %q",
				CacheStore, driver)
		}
	default:
		return fmt.Errorf("embedding.cache.mode must be none, lru or store, got %q", e.Cache.Mode)
	}
	return nil
}

// ParsedLanguages returns the configured languages; empty means all.
func (r RetrievalConfig) ParsedLanguages() ([]domain.Language, error) {
	return domain.ParseLanguages(r.Languages)
}

// ParsedEntityTypes returns the configured entity types; empty means all.
func (r RetrievalConfig) ParsedEntityTypes() ([]domain.EntityType, error) {
	return domain.ParseEntityTypes(r.EntityTypes)
}

// EmbeddingTimeout returns the per-query embedding timeout.
func (r RetrievalConfig) EmbeddingTimeout() time.Duration {
	return time.Duration(r.EmbeddingTimeoutSec) * time.Second
}

// SearchTimeout returns the per-search timeout.
func (r RetrievalConfig) SearchTimeout() time.Duration {
	return time.Duration(r.SearchTimeoutSec) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
