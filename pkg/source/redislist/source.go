// Package redislist provides a pagination.Source over a Redis list.
//
// Each page is read with LRANGE and the total with LLEN inside one
// MULTI/EXEC transaction, so items and total describe the same list state.
// Lists may be appended to or trimmed while a cursor walks them; the cursor's
// EndPolicy decides how such changes are followed.
//
// Example usage:
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//	src := redislist.Strings(redisClient, "events")
//	lines, err := stream.NewBuilder[string](src).Parallel(true).Build().Collect(ctx)
package redislist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagedseq/pkg/logging"
	"github.com/Sternrassler/pagedseq/pkg/pagination"
)

// ErrNegativeOffset is returned for windows starting before the list head.
var ErrNegativeOffset = errors.New("offset must not be negative")

// Decoder converts one list element into T.
type Decoder[T any] func(raw string) (T, error)

// Source reads pages of T from a Redis list.
type Source[T any] struct {
	redis  *redis.Client
	key    string
	decode Decoder[T]
	logger zerolog.Logger
}

// New creates a source over the list at key.
func New[T any](redisClient *redis.Client, key string, decode Decoder[T]) *Source[T] {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if decode == nil {
		panic("decoder cannot be nil")
	}
	return &Source[T]{
		redis:  redisClient,
		key:    key,
		decode: decode,
		logger: logging.NewLogger(logging.ComponentRedisList).With().Str("key", key).Logger(),
	}
}

// Strings creates a source yielding the raw list elements.
func Strings(redisClient *redis.Client, key string) *Source[string] {
	return New(redisClient, key, func(raw string) (string, error) { return raw, nil })
}

// JSON returns a decoder that unmarshals each element as JSON.
func JSON[T any]() Decoder[T] {
	return func(raw string) (T, error) {
		var v T
		err := json.Unmarshal([]byte(raw), &v)
		return v, err
	}
}

// WithLogger returns a copy of s logging to logger.
func (s *Source[T]) WithLogger(logger zerolog.Logger) *Source[T] {
	c := *s
	c.logger = logger
	return &c
}

// Key returns the list key.
func (s *Source[T]) Key() string {
	return s.key
}

// Fetch implements pagination.Source.
func (s *Source[T]) Fetch(ctx context.Context, offset, limit int64) (pagination.Page[T], error) {
	if offset < 0 {
		return pagination.Page[T]{}, ErrNegativeOffset
	}

	pipe := s.redis.TxPipeline()
	var rng *redis.StringSliceCmd
	if limit > 0 {
		rng = pipe.LRange(ctx, s.key, offset, offset+limit-1)
	}
	length := pipe.LLen(ctx, s.key)
	if _, err := pipe.Exec(ctx); err != nil {
		return pagination.Page[T]{}, fmt.Errorf("redis list page %s[%d:+%d]: %w", s.key, offset, limit, err)
	}

	page := pagination.Page[T]{Total: length.Val()}
	if rng == nil {
		return page, nil
	}

	raw := rng.Val()
	page.Items = make([]T, 0, len(raw))
	for i, r := range raw {
		item, err := s.decode(r)
		if err != nil {
			return pagination.Page[T]{}, fmt.Errorf("decode %s[%d]: %w", s.key, offset+int64(i), err)
		}
		page.Items = append(page.Items, item)
	}

	s.logger.Debug().
		Int64("offset", offset).
		Int64("limit", limit).
		Int("items", len(page.Items)).
		Int64("total", page.Total).
		Msg("Read list page")

	return page, nil
}

// Append pushes values onto the tail of the list and returns its new length.
func Append(ctx context.Context, redisClient *redis.Client, key string, values ...string) (int64, error) {
	if len(values) == 0 {
		return redisClient.LLen(ctx, key).Result()
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	n, err := redisClient.RPush(ctx, key, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis rpush %s: %w", key, err)
	}
	return n, nil
}

// AppendJSON marshals values and pushes them onto the tail of the list.
func AppendJSON[T any](ctx context.Context, redisClient *redis.Client, key string, values ...T) (int64, error) {
	encoded := make([]string, len(values))
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("marshal value %d: %w", i, err)
		}
		encoded[i] = string(data)
	}
	return Append(ctx, redisClient, key, encoded...)
}

// Trim keeps only the elements in [start, stop] (LTRIM semantics, stop
// inclusive, negative indexes count from the tail).
func Trim(ctx context.Context, redisClient *redis.Client, key string, start, stop int64) error {
	if err := redisClient.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("redis ltrim %s: %w", key, err)
	}
	return nil
}
