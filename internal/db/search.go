package db

import "github.com/kailas-cloud/nerprompt/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	Collection   string
	Filters      filter.Expression
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Metric  DistanceMetric
	Entries []SearchEntry
}

// SearchEntry is a single record hit, ordered by ascending distance.
type SearchEntry struct {
	ID       string
	Distance float64
	Fields   map[string]string
}

// Similarity converts the entry distance into a score where higher is closer.
func (e SearchEntry) Similarity(metric DistanceMetric) float64 {
	return Similarity(metric, e.Distance)
}
