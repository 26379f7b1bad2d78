package retrieval

import (
	"time"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// Defaults applied to zero Config fields.
const (
	DefaultTopK              = 5
	DefaultEmbeddingTimeout  = 30 * time.Second
	DefaultSearchTimeout     = 10 * time.Second
	DefaultSearchConcurrency = 9 // one sentence search plus one per entity type
)

// Config tunes the retrieval engine.
type Config struct {
	Languages           []domain.Language   // allow-list; empty means all
	EntityTypes         []domain.EntityType // searched types; empty means all
	TopKEntities        int
	TopKSentences       int
	SimilarityThreshold float64 // hits scoring below are dropped; 0 disables
	EmbeddingTimeout    time.Duration
	SearchTimeout       time.Duration
	SearchConcurrency   int
}

func (c Config) withDefaults() Config {
	if len(c.Languages) == 0 {
		c.Languages = domain.AllLanguages()
	}
	if len(c.EntityTypes) == 0 {
		c.EntityTypes = domain.AllEntityTypes()
	} else {
		set := make(map[domain.EntityType]bool, len(c.EntityTypes))
		for _, t := range c.EntityTypes {
			set[t] = true
		}
		c.EntityTypes = domain.SortEntityTypes(set)
	}
	if c.TopKEntities <= 0 {
		c.TopKEntities = DefaultTopK
	}
	if c.TopKSentences <= 0 {
		c.TopKSentences = DefaultTopK
	}
	if c.EmbeddingTimeout <= 0 {
		c.EmbeddingTimeout = DefaultEmbeddingTimeout
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = DefaultSearchTimeout
	}
	if c.SearchConcurrency <= 0 {
		c.SearchConcurrency = DefaultSearchConcurrency
	}
	return c
}
