// Package metrics defines the Prometheus instruments docflow records.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docflow"

// Ingestion metrics.
var (
	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Ingestion events finished, by operation and outcome",
		},
		[]string{"operation", "status"}, // status: "done" / "failed" / "requeued"
	)

	DocumentsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_deleted_total",
			Help:      "Documents soft-deleted by deletion events",
		},
	)

	ChunksCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_created_total",
			Help:      "Chunks written by the parser",
		},
	)

	DocumentProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_processing_duration_seconds",
			Help:      "Time from claim to commit for one ingestion event",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	ProcessingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_errors_total",
			Help:      "Errors by pipeline stage",
		},
		[]string{"stage"},
	)
)

// Enrichment metrics.
var (
	ChunksEnrichedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_enriched_total",
			Help:      "Chunks that received an embedding",
		},
		[]string{"worker"},
	)

	ChunkFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_failures_total",
			Help:      "Chunks marked failed, by reason",
		},
		[]string{"worker", "reason"},
	)

	ChunksReleasedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_released_total",
			Help:      "Claimed chunks handed back without an attempt",
		},
		[]string{"worker"},
	)

	ChunksExhausted = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks_exhausted",
			Help:      "Failed chunks past the attempt limit seen in the last cycle",
		},
		[]string{"worker"},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Embedding requests refused with a rate limit",
		},
		[]string{"worker"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)
)

var registerOnce sync.Once

// RegisterMetrics registers every instrument with the default registry.
// Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EventsProcessedTotal,
			DocumentsDeletedTotal,
			ChunksCreatedTotal,
			DocumentProcessingDuration,
			ProcessingErrorsTotal,
			ChunksEnrichedTotal,
			ChunkFailuresTotal,
			ChunksReleasedTotal,
			ChunksExhausted,
			RateLimitedTotal,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
		)
	})
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
