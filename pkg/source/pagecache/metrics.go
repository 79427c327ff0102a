package pagecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache operations.
const (
	opGet    = "get"
	opSet    = "set"
	opDelete = "delete"
	opDecode = "decode"
)

var (
	// CacheHits counts fetches served from Redis.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagedseq_page_cache_hits_total",
			Help: "Total number of page cache hits",
		},
	)

	// CacheMisses counts fetches passed to the wrapped source.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagedseq_page_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// CacheErrors counts failed cache operations.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagedseq_page_cache_errors_total",
			Help: "Total number of page cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "decode"
	)

	// StoredBytes counts the bytes written to Redis.
	StoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagedseq_page_cache_stored_bytes_total",
			Help: "Total bytes of page entries written to the cache",
		},
	)
)
