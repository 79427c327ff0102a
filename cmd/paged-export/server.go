package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagedseq/pkg/metrics"
	"github.com/Sternrassler/pagedseq/pkg/pagination"
	"github.com/Sternrassler/pagedseq/pkg/source/redislist"
	"github.com/Sternrassler/pagedseq/pkg/stream"
)

// Export results.
const (
	resultOK            = "ok"
	resultBadRequest    = "bad_request"
	resultUpstreamError = "upstream_error"
	resultAborted       = "aborted"
)

var exportRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pagedseq_export_requests_total",
	Help: "Total export requests by result",
}, []string{"result"})

type server struct {
	redis    *redis.Client
	defaults stream.Config
	logger   zerolog.Logger
}

func newServer(redisClient *redis.Client, defaults stream.Config, logger zerolog.Logger) *server {
	return &server{redis: redisClient, defaults: defaults, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", s.readyHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /export/{key}", s.exportHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.redis.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Readiness check failed")
		http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// exportOptions are the per-request stream settings.
type exportOptions struct {
	cfg     stream.Config
	ordered bool
}

// parseExportOptions applies page_size, parallel, ordered and end_policy
// query overrides to the server defaults.
func parseExportOptions(q url.Values, defaults stream.Config) (exportOptions, error) {
	opts := exportOptions{cfg: defaults, ordered: true}

	if v := q.Get("page_size"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return exportOptions{}, fmt.Errorf("page_size must be a positive integer (got %q)", v)
		}
		opts.cfg.PageSize = n
	}
	if v := q.Get("parallel"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return exportOptions{}, fmt.Errorf("parallel must be a boolean (got %q)", v)
		}
		opts.cfg.Parallel = b
	}
	if v := q.Get("ordered"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return exportOptions{}, fmt.Errorf("ordered must be a boolean (got %q)", v)
		}
		opts.ordered = b
	}
	if v := q.Get("end_policy"); v != "" {
		p, err := pagination.ParseEndPolicy(v)
		if err != nil {
			return exportOptions{}, err
		}
		opts.cfg.EndPolicy = p
	}
	return opts, nil
}

// exportHandler streams the Redis list named by the path as NDJSON. Elements
// that are valid JSON are written as is, anything else as a JSON string.
func (s *server) exportHandler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	opts, err := parseExportOptions(r.URL.Query(), s.defaults)
	if err != nil {
		exportRequests.WithLabelValues(resultBadRequest).Inc()
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	logger := s.logger.With().Str("key", key).Logger()
	opts.cfg.Logger = &logger

	out := newNDJSONWriter(w)
	src := redislist.Strings(s.redis, key).WithLogger(logger)
	st := stream.FromSource[string](src, opts.cfg)

	if opts.cfg.Parallel && !opts.ordered {
		err = st.ForEach(r.Context(), out.writeLocked)
	} else {
		err = st.ForEachOrdered(r.Context(), out.write)
	}
	if err == nil {
		err = out.finish()
	}

	switch {
	case err == nil:
		exportRequests.WithLabelValues(resultOK).Inc()
		logger.Info().Int64("items", out.count()).Msg("Export complete")
	case !out.started():
		exportRequests.WithLabelValues(resultUpstreamError).Inc()
		logger.Warn().Err(err).Msg("Export failed before first item")
		writeJSONError(w, http.StatusBadGateway, err)
	default:
		exportRequests.WithLabelValues(resultAborted).Inc()
		logger.Warn().Err(err).Int64("items", out.count()).Msg("Export stream cut")
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// ndjsonWriter writes one JSON value per line. The status line and headers
// are sent with the first item, or by finish for empty exports.
type ndjsonWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	buf     *bufio.Writer
	n       int64
	err     error
	sending bool
}

func newNDJSONWriter(w http.ResponseWriter) *ndjsonWriter {
	return &ndjsonWriter{w: w}
}

func (o *ndjsonWriter) start() {
	if o.sending {
		return
	}
	o.sending = true
	o.w.Header().Set("Content-Type", "application/x-ndjson")
	o.w.WriteHeader(http.StatusOK)
	o.buf = bufio.NewWriter(o.w)
}

func (o *ndjsonWriter) write(item string) {
	if o.err != nil {
		return
	}
	o.start()
	if json.Valid([]byte(item)) {
		_, o.err = o.buf.WriteString(item)
	} else {
		var data []byte
		data, o.err = json.Marshal(item)
		if o.err == nil {
			_, o.err = o.buf.Write(data)
		}
	}
	if o.err == nil {
		o.err = o.buf.WriteByte('\n')
	}
	o.n++
}

func (o *ndjsonWriter) writeLocked(item string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.write(item)
}

// finish flushes buffered lines, sending headers if nothing was written.
func (o *ndjsonWriter) finish() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.start()
	if o.err == nil {
		o.err = o.buf.Flush()
	}
	if o.err != nil {
		return fmt.Errorf("%w: %w", errWriteFailed, o.err)
	}
	if f, ok := o.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (o *ndjsonWriter) started() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sending
}

func (o *ndjsonWriter) count() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}

// errWriteFailed is reported when the client connection drops mid-export.
var errWriteFailed = errors.New("write to client failed")
