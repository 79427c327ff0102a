package pagecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested page was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// invalidateBatch is the SCAN count and DEL batch size of Invalidate.
const invalidateBatch = 256

// Manager stores page entries in Redis.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get retrieves a page entry by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(opGet).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(opGet).Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		return nil, ErrCacheMiss
	}

	return &entry, nil
}

// Set stores an entry with a TTL derived from its Expires field.
// Entries that are already expired are not stored.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues(opSet).Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues(opSet).Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	StoredBytes.Add(float64(len(data)))
	return nil
}

// Delete removes a page entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues(opDelete).Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Invalidate removes every cached page of namespace and returns the number
// of deleted entries.
func (m *Manager) Invalidate(ctx context.Context, namespace string) (int64, error) {
	pattern := namespacePrefix(namespace) + ":*"
	iter := m.redis.Scan(ctx, 0, pattern, invalidateBatch).Iterator()

	var deleted int64
	batch := make([]string, 0, invalidateBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := m.redis.Del(ctx, batch...).Result()
		if err != nil {
			CacheErrors.WithLabelValues(opDelete).Inc()
			return fmt.Errorf("redis del: %w", err)
		}
		deleted += n
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == invalidateBatch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues(opDelete).Inc()
		return deleted, fmt.Errorf("redis scan: %w", err)
	}
	return deleted, flush()
}

// newEntry encodes items into an entry expiring after ttl.
func newEntry[T any](items []T, total int64, ttl time.Duration) (*Entry, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal page items: %w", err)
	}
	now := time.Now()
	return &Entry{
		Items:    data,
		Total:    total,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}, nil
}
