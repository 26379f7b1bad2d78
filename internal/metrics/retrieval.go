package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval and ingestion Prometheus metrics.
var (
	RetrievalSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nerprompt",
			Name:      "retrieval_searches_total",
			Help:      "Vector searches issued by the retrieval engine",
		},
		[]string{"kind", "status"}, // kind: entity/sentence; status: ok/error/not_found
	)

	RetrievalDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nerprompt",
			Name:      "retrieval_degraded_total",
			Help:      "Retrieval sections replaced by an empty result",
		},
		[]string{"section"},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nerprompt",
			Name:      "retrieval_duration_seconds",
			Help:      "End-to-end retrieval duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"language"},
	)

	IngestionRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nerprompt",
			Name:      "ingestion_records_total",
			Help:      "Records processed by the ingestion pipeline",
		},
		[]string{"kind", "language", "result"}, // result: inserted/duplicate/failed
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval and ingestion metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalSearchesTotal)
	prometheus.MustRegister(RetrievalDegradedTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(IngestionRecordsTotal)
	retrievalMetricsRegistered = true
}
