package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch stages.
const (
	stageFirst = "first"
	stageNext  = "next"
)

// Split kinds.
const (
	splitFirstPage = "first_page"
	splitRange     = "range"
	splitInPage    = "in_page"
)

var (
	// PageFetches counts successful page fetches by stage (first, next).
	PageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagedseq_page_fetches_total",
			Help: "Total number of page fetches by stage",
		},
		[]string{"stage"},
	)

	// PageFetchErrors counts page fetches that returned an error.
	PageFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagedseq_page_fetch_errors_total",
			Help: "Total number of failed page fetches by stage",
		},
		[]string{"stage"},
	)

	// PageFetchDuration tracks page fetch latency.
	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagedseq_page_fetch_duration_seconds",
			Help:    "Page fetch duration in seconds by stage",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"stage"},
	)

	// ItemsFetched counts items returned by all fetches.
	ItemsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagedseq_items_fetched_total",
			Help: "Total number of items returned by page fetches",
		},
	)

	// Splits counts successful splits by kind (first_page, range, in_page).
	Splits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagedseq_splits_total",
			Help: "Total number of cursor splits by kind",
		},
		[]string{"kind"},
	)
)
