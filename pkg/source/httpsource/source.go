// Package httpsource provides a pagination.Source over HTTP APIs that page
// with offset/limit query parameters and report the total in a header.
package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagedseq/pkg/logging"
	"github.com/Sternrassler/pagedseq/pkg/pagination"
)

// Config holds the source configuration.
type Config struct {
	// BaseURL is the collection endpoint. Existing query parameters are kept.
	BaseURL string

	// Query parameter and header names.
	OffsetParam string
	LimitParam  string
	TotalHeader string

	// User-Agent header (REQUIRED)
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// Timeout applies per request when HTTPClient is nil.
	Timeout time.Duration

	// Retry
	Retry RetryConfig

	// RateLimiter gates requests on a shared budget. Optional.
	RateLimiter RateLimiter

	// HTTPClient overrides the default client.
	HTTPClient *http.Client

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:     baseURL,
		OffsetParam: "offset",
		LimitParam:  "limit",
		TotalHeader: "X-Total-Count",
		UserAgent:   userAgent,
		Timeout:     30 * time.Second,
		Retry:       DefaultRetryConfig(),
	}
}

// RateLimiter gates requests on an upstream budget. *ratelimit.Tracker
// implements it.
type RateLimiter interface {
	// Wait blocks until a request may be sent.
	Wait(ctx context.Context) error
	// UpdateFromHeaders records the budget reported by a response.
	UpdateFromHeaders(ctx context.Context, headers http.Header) error
}

// Source fetches pages of T from a JSON array endpoint.
type Source[T any] struct {
	httpClient *http.Client
	base       *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a source. Empty parameter and header names take their defaults.
func New[T any](cfg Config) (*Source[T], error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	defaults := DefaultConfig(cfg.BaseURL, cfg.UserAgent)
	if cfg.OffsetParam == "" {
		cfg.OffsetParam = defaults.OffsetParam
	}
	if cfg.LimitParam == "" {
		cfg.LimitParam = defaults.LimitParam
	}
	if cfg.TotalHeader == "" {
		cfg.TotalHeader = defaults.TotalHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := logging.NewLogger(logging.ComponentHTTPSource)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Source[T]{
		httpClient: httpClient,
		base:       base,
		config:     cfg,
		logger:     logger,
	}, nil
}

// Fetch implements pagination.Source. Retriable failures are retried per
// Config.Retry.
func (s *Source[T]) Fetch(ctx context.Context, offset, limit int64) (pagination.Page[T], error) {
	var page pagination.Page[T]
	err := retryWithBackoff(ctx, s.config.Retry, s.logger, func() error {
		p, err := s.fetchOnce(ctx, offset, limit)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return pagination.Page[T]{}, err
	}
	return page, nil
}

// pageURL returns the request URL for a window.
func (s *Source[T]) pageURL(offset, limit int64) string {
	u := *s.base
	q := u.Query()
	q.Set(s.config.OffsetParam, strconv.FormatInt(offset, 10))
	q.Set(s.config.LimitParam, strconv.FormatInt(limit, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Source[T]) fetchOnce(ctx context.Context, offset, limit int64) (pagination.Page[T], error) {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL(offset, limit), nil)
	if err != nil {
		return pagination.Page[T]{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	if s.config.RateLimiter != nil {
		if err := s.config.RateLimiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return pagination.Page[T]{}, err
			}
			s.logger.Warn().Err(err).Msg("Rate limit check failed, sending request anyway")
		}
	}

	s.logger.Debug().
		Int64("offset", offset).
		Int64("limit", limit).
		Msg("Executing page request")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		s.logger.Error().Err(err).Int64("offset", offset).Msg("HTTP request failed")
		return pagination.Page[T]{}, &StatusError{
			Class:   ErrorClassNetwork,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if s.config.RateLimiter != nil {
		if err := s.config.RateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to record rate limit headers")
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		s.logger.Warn().
			Int64("offset", offset).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Page request error")
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return pagination.Page[T]{}, &StatusError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	total, err := strconv.ParseInt(strings.TrimSpace(resp.Header.Get(s.config.TotalHeader)), 10, 64)
	if err != nil || total < 0 {
		return pagination.Page[T]{}, fmt.Errorf("%w: %s", ErrMissingTotal, s.config.TotalHeader)
	}

	var items []T
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return pagination.Page[T]{}, fmt.Errorf("decode page at offset %d: %w", offset, err)
	}

	return pagination.Page[T]{Items: items, Total: total}, nil
}
