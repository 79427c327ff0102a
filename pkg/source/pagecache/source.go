package pagecache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagedseq/pkg/logging"
	"github.com/Sternrassler/pagedseq/pkg/pagination"
)

// Source serves pages from the cache and fetches misses from the wrapped
// source. It is safe for concurrent use if the wrapped source is.
type Source[T any] struct {
	source    pagination.Source[T]
	manager   *Manager
	namespace string
	ttl       time.Duration
	logger    zerolog.Logger
}

// Wrap caches the pages of src under namespace for ttl.
func Wrap[T any](src pagination.Source[T], manager *Manager, namespace string, ttl time.Duration) *Source[T] {
	if src == nil {
		panic("source cannot be nil")
	}
	if manager == nil {
		panic("cache manager cannot be nil")
	}
	return &Source[T]{
		source:    src,
		manager:   manager,
		namespace: namespace,
		ttl:       ttl,
		logger:    logging.NewLogger(logging.ComponentCache),
	}
}

// WithLogger returns a copy of s logging to logger.
func (s *Source[T]) WithLogger(logger zerolog.Logger) *Source[T] {
	c := *s
	c.logger = logger
	return &c
}

// Fetch implements pagination.Source.
func (s *Source[T]) Fetch(ctx context.Context, offset, limit int64) (pagination.Page[T], error) {
	key := Key{Namespace: s.namespace, Offset: offset, Limit: limit}

	if page, ok := s.lookup(ctx, key); ok {
		CacheHits.Inc()
		return page, nil
	}
	CacheMisses.Inc()

	page, err := s.source.Fetch(ctx, offset, limit)
	if err != nil {
		return page, err
	}
	if len(page.Items) > 0 && s.ttl > 0 {
		s.store(ctx, key, page)
	}
	return page, nil
}

func (s *Source[T]) lookup(ctx context.Context, key Key) (pagination.Page[T], bool) {
	entry, err := s.manager.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Cache lookup failed")
		}
		return pagination.Page[T]{}, false
	}

	var items []T
	if err := json.Unmarshal(entry.Items, &items); err != nil {
		CacheErrors.WithLabelValues(opDecode).Inc()
		s.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Dropping undecodable cache entry")
		_ = s.manager.Delete(ctx, key)
		return pagination.Page[T]{}, false
	}
	if int64(len(items)) > key.Limit {
		items = items[:key.Limit]
	}

	s.logger.Debug().
		Str("cache_key", key.String()).
		Int("items", len(items)).
		Dur("age", time.Since(entry.CachedAt)).
		Msg("Page cache hit")
	return pagination.Page[T]{Items: items, Total: entry.Total}, true
}

func (s *Source[T]) store(ctx context.Context, key Key, page pagination.Page[T]) {
	entry, err := newEntry(page.Items, page.Total, s.ttl)
	if err == nil {
		err = s.manager.Set(ctx, key, entry)
	} else {
		CacheErrors.WithLabelValues(opSet).Inc()
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Failed to cache page")
	}
}
