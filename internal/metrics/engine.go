package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Indexing engine metrics.
var (
	PipelineDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdex",
			Name:      "pipeline_documents_total",
			Help:      "Documents handled by the embedding pipeline, by outcome",
		},
		[]string{"outcome"}, // succeeded / failed / skipped
	)

	PipelineRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imgdex",
			Name:      "pipeline_run_duration_seconds",
			Help:      "Duration of a RunBatch call",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	ReconcileRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdex",
			Name:      "reconcile_repairs_total",
			Help:      "Synchronizer actions, by kind",
		},
		[]string{"kind"}, // upserted / reprocessed / orphan_deleted / collision / failed
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imgdex",
			Name:      "search_duration_seconds",
			Help:      "Search latency by mode",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode", "status"},
	)
)

var registerEngine sync.Once

// RegisterEngineMetrics registers pipeline, synchronizer and search metrics. Safe to call more than once.
func RegisterEngineMetrics() {
	registerEngine.Do(func() {
		prometheus.MustRegister(
			PipelineDocumentsTotal,
			PipelineRunDuration,
			ReconcileRepairsTotal,
			SearchDuration,
		)
	})
}
