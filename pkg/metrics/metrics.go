// Package metrics provides Prometheus metrics for the matching service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReviewDecisionsTotal counts review queue transitions by action
	ReviewDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "review",
			Name:      "decisions_total",
			Help:      "Total number of review decisions by action",
		},
		[]string{"action"},
	)

	// ReviewErrorsTotal counts rejected review requests by error kind
	ReviewErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "review",
			Name:      "errors_total",
			Help:      "Total number of failed review operations by action and kind",
		},
		[]string{"action", "kind"},
	)

	// MatchingRunsTotal counts pipeline batches by status
	MatchingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "runs_total",
			Help:      "Total number of matching runs by status",
		},
		[]string{"status"},
	)

	MatchingRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "run_duration_seconds",
			Help:      "Duration of matching runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
	)

	// RecordsCreatedTotal counts review records written by the pipeline
	RecordsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "records_created_total",
			Help:      "Total number of review records created by matching runs",
		},
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "training",
			Name:      "duration_seconds",
			Help:      "Duration of reranker training in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 300, 900, 1800},
		},
	)

	// ArtifactCacheTotal counts artifact lookups by result (hit, miss, stale)
	ArtifactCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "artifact",
			Name:      "lookups_total",
			Help:      "Total number of artifact cache lookups by result",
		},
		[]string{"result"},
	)

	EmbeddingBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "embedding",
			Name:      "batch_duration_seconds",
			Help:      "Duration of embedding calls in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	// EventsPublishedTotal counts Kafka events by type and status
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of published events by type and status",
		},
		[]string{"event_type", "status"},
	)
)
