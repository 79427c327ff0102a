// Package metrics exposes the Prometheus metrics of pagedseq.
// All metrics are defined in their respective packages (pagination, stream,
// source/httpsource, source/pagecache, ratelimit) to maintain modularity and avoid circular dependencies.
//
// This package provides the HTTP handler and documentation for all available
// metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by pagedseq.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer Handler serves from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns an HTTP handler serving all registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cursor Metrics (pkg/pagination):
//   - pagedseq_page_fetches_total{stage} (Counter): Successful page fetches (first, next)
//   - pagedseq_page_fetch_errors_total{stage} (Counter): Failed page fetches
//   - pagedseq_page_fetch_duration_seconds{stage} (Histogram): Page fetch latency
//   - pagedseq_items_fetched_total (Counter): Items returned by page fetches
//   - pagedseq_splits_total{kind} (Counter): Cursor splits (first_page, range, in_page)
//
// Stream Metrics (pkg/stream):
//   - pagedseq_stream_operations_total{op, mode, result} (Counter): Terminal operations
//   - pagedseq_stream_operation_duration_seconds{op, mode} (Histogram): Terminal operation latency
//
// HTTP Source Metrics (pkg/source/httpsource):
//   - pagedseq_http_requests_total{status} (Counter): Page requests by HTTP status
//   - pagedseq_http_request_duration_seconds (Histogram): Page request duration
//   - pagedseq_http_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - pagedseq_http_retries_total{class} (Counter): Retry attempts by error class
//   - pagedseq_http_retry_backoff_seconds{class} (Histogram): Backoff duration by error class
//   - pagedseq_http_retry_exhausted_total{class} (Counter): Requests that exhausted max retries
//
// Page Cache Metrics (pkg/source/pagecache):
//   - pagedseq_page_cache_hits_total (Counter): Fetches served from Redis
//   - pagedseq_page_cache_misses_total (Counter): Fetches passed to the wrapped source
//   - pagedseq_page_cache_errors_total{operation} (Counter): Failed cache operations (get, set, delete, decode)
//   - pagedseq_page_cache_stored_bytes_total (Counter): Bytes of page entries written
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pagedseq_rate_limit_remaining{name} (Gauge): Requests left in the current window
//   - pagedseq_rate_limit_blocks_total{name} (Counter): Requests held until the window reset
//   - pagedseq_rate_limit_throttles_total{name} (Counter): Requests delayed by throttling
//
// Export Metrics (cmd/paged-export):
//   - pagedseq_export_requests_total{result} (Counter): Export requests by result
//
// Example Prometheus Queries:
//
//   # Pages fetched per second
//   sum(rate(pagedseq_page_fetches_total[5m]))
//
//   # Page fetch error ratio
//   sum(rate(pagedseq_page_fetch_errors_total[5m])) / sum(rate(pagedseq_page_fetches_total[5m]))
//
//   # P95 page fetch latency
//   histogram_quantile(0.95, rate(pagedseq_page_fetch_duration_seconds_bucket[5m]))
//
//   # Page cache hit ratio
//   rate(pagedseq_page_cache_hits_total[5m]) / (rate(pagedseq_page_cache_hits_total[5m]) + rate(pagedseq_page_cache_misses_total[5m]))
//
//   # Share of splits that cut unfetched ranges
//   rate(pagedseq_splits_total{kind="range"}[5m]) / rate(pagedseq_splits_total[5m])
