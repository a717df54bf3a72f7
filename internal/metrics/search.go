package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Search and indexing Prometheus metrics.
var (
	SearchBranchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "partsearch",
			Name:      "search_branch_duration_seconds",
			Help:      "Duration of one retrieval branch (text, image, caption)",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"branch"},
	)

	SearchBranchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partsearch",
			Name:      "search_branch_failures_total",
			Help:      "Retrieval branch failures by stage; the request still succeeds",
		},
		[]string{"branch", "stage"},
	)

	SearchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "partsearch",
			Name:      "search_results",
			Help:      "Number of fused results returned per search",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 10},
		},
	)

	IndexerUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partsearch",
			Name:      "indexer_upserts_total",
			Help:      "Vectors written to the catalog indexes",
		},
		[]string{"modality"},
	)

	IndexerSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partsearch",
			Name:      "indexer_skipped_total",
			Help:      "Catalog entries skipped during indexing",
		},
		[]string{"modality", "reason"},
	)
)

var registerSearchOnce sync.Once

// RegisterSearchMetrics registers search and indexing metrics with the default registry.
func RegisterSearchMetrics() {
	registerSearchOnce.Do(func() {
		prometheus.MustRegister(
			SearchBranchDuration,
			SearchBranchFailuresTotal,
			SearchResults,
			IndexerUpsertsTotal,
			IndexerSkippedTotal,
		)
	})
}
