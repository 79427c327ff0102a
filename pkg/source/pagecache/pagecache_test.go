package pagecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/pagedseq/internal/testutil"
	"github.com/Sternrassler/pagedseq/pkg/pagination"
	"github.com/Sternrassler/pagedseq/pkg/stream"
)

// setupTestRedis starts an in-memory Redis and returns a client for it.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func cachedInts(t *testing.T, client *redis.Client, n int, ttl time.Duration) (*Source[int], *testutil.RecordingSource[int]) {
	t.Helper()
	rec := testutil.NewRecordingSource[int](testutil.NewStaticSource(testutil.Ints(0, n)))
	return Wrap[int](rec, NewManager(client), "ints", ttl).WithLogger(zerolog.Nop()), rec
}

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"simple", Key{Namespace: "orders", Offset: 200, Limit: 100}, "pagedseq:page:orders:200:100"},
		{"trimmed namespace", Key{Namespace: " :orders: ", Offset: 0, Limit: 10}, "pagedseq:page:orders:0:10"},
		{"empty namespace", Key{Offset: 5, Limit: 5}, "pagedseq:page:5:5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	fresh := &Entry{Expires: time.Now().Add(time.Minute)}
	assert.False(t, fresh.IsExpired())
	assert.Greater(t, fresh.TTL(), 50*time.Second)

	stale := &Entry{Expires: time.Now().Add(-time.Minute)}
	assert.True(t, stale.IsExpired())
	assert.Zero(t, stale.TTL())
}

func TestNewManager_Panic(t *testing.T) {
	assert.Panics(t, func() { NewManager(nil) })

	_, client := setupTestRedis(t)
	assert.Panics(t, func() { Wrap[int](nil, NewManager(client), "x", time.Minute) })
	assert.Panics(t, func() { Wrap[int](testutil.NewStaticSource([]int{1}), nil, "x", time.Minute) })
}

func TestManager_SetSkipsExpired(t *testing.T) {
	mr, client := setupTestRedis(t)
	m := NewManager(client)
	key := Key{Namespace: "n", Offset: 0, Limit: 1}

	require.Error(t, m.Set(context.Background(), key, nil))
	require.NoError(t, m.Set(context.Background(), key, &Entry{Expires: time.Now().Add(-time.Second)}))
	assert.False(t, mr.Exists(key.String()))

	_, err := m.Get(context.Background(), key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSource_CachesPages(t *testing.T) {
	_, client := setupTestRedis(t)
	cached, rec := cachedInts(t, client, 10, time.Minute)
	ctx := context.Background()

	hitsBefore := promtest.ToFloat64(CacheHits)

	first, err := cached.Fetch(ctx, 0, 5)
	require.NoError(t, err)
	second, err := cached.Fetch(ctx, 0, 5)
	require.NoError(t, err)

	assert.Equal(t, pagination.Page[int]{Items: testutil.Ints(0, 5), Total: 10}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, rec.Count())
	assert.Equal(t, 1.0, promtest.ToFloat64(CacheHits)-hitsBefore)

	// A different window is a different entry.
	_, err = cached.Fetch(ctx, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Count())
}

func TestSource_TTLExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	cached, rec := cachedInts(t, client, 10, time.Minute)
	ctx := context.Background()

	_, err := cached.Fetch(ctx, 5, 5)
	require.NoError(t, err)
	assert.InDelta(t, time.Minute.Seconds(), mr.TTL(Key{Namespace: "ints", Offset: 5, Limit: 5}.String()).Seconds(), 1)

	mr.FastForward(2 * time.Minute)

	page, err := cached.Fetch(ctx, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, testutil.Ints(5, 10), page.Items)
	assert.Equal(t, 2, rec.Count())
}

func TestSource_ZeroTTLDisablesStore(t *testing.T) {
	_, client := setupTestRedis(t)
	cached, rec := cachedInts(t, client, 10, 0)

	for range 2 {
		_, err := cached.Fetch(context.Background(), 0, 5)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, rec.Count())
}

func TestSource_EmptyPageNotCached(t *testing.T) {
	mr, client := setupTestRedis(t)
	cached, rec := cachedInts(t, client, 10, time.Minute)

	for range 2 {
		page, err := cached.Fetch(context.Background(), 20, 5)
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.EqualValues(t, 10, page.Total)
	}
	assert.Equal(t, 2, rec.Count())
	assert.Empty(t, mr.Keys())
}

func TestSource_ErrorNotCached(t *testing.T) {
	mr, client := setupTestRedis(t)
	boom := errors.New("boom")
	rec := testutil.NewRecordingSource[int](testutil.FailingSource[int]{
		Source:     testutil.NewStaticSource(testutil.Ints(0, 10)),
		FailOffset: 0,
		Err:        boom,
	})
	cached := Wrap[int](rec, NewManager(client), "failing", time.Minute)

	for range 2 {
		_, err := cached.Fetch(context.Background(), 0, 5)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 2, rec.Count())
	assert.Empty(t, mr.Keys())
}

func TestSource_CorruptEntry(t *testing.T) {
	mr, client := setupTestRedis(t)
	cached, rec := cachedInts(t, client, 10, time.Minute)
	key := Key{Namespace: "ints", Offset: 0, Limit: 5}

	t.Run("invalid entry json", func(t *testing.T) {
		require.NoError(t, mr.Set(key.String(), "not json"))

		page, err := cached.Fetch(context.Background(), 0, 5)
		require.NoError(t, err)
		assert.Equal(t, testutil.Ints(0, 5), page.Items)
		assert.Equal(t, 1, rec.Count())
	})

	t.Run("items of the wrong type", func(t *testing.T) {
		entry, err := newEntry([]string{"a", "b"}, 2, time.Minute)
		require.NoError(t, err)
		require.NoError(t, NewManager(client).Set(context.Background(), key, entry))

		decodeBefore := promtest.ToFloat64(CacheErrors.WithLabelValues(opDecode))
		page, err := cached.Fetch(context.Background(), 0, 5)
		require.NoError(t, err)
		assert.Equal(t, testutil.Ints(0, 5), page.Items)
		assert.Equal(t, 2, rec.Count())
		assert.Equal(t, 1.0, promtest.ToFloat64(CacheErrors.WithLabelValues(opDecode))-decodeBefore)
	})
}

func TestSource_RedisUnavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	cached, rec := cachedInts(t, client, 10, time.Minute)
	mr.Close()

	page, err := cached.Fetch(context.Background(), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, testutil.Ints(0, 5), page.Items)
	assert.Equal(t, 1, rec.Count())
}

func TestSource_StreamReadsFromCache(t *testing.T) {
	mr, client := setupTestRedis(t)
	cached, rec := cachedInts(t, client, 35, time.Minute)
	ctx := context.Background()

	build := func() *stream.Stream[int] {
		return stream.NewBuilder[int](cached).PageSize(10).Build()
	}

	got, err := build().Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.Ints(0, 35), got)
	fetched := rec.Count()

	got, err = build().Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.Ints(0, 35), got)
	assert.Equal(t, fetched, rec.Count(), "second pass must be served from cache")

	// Pages of another namespace survive invalidation.
	other := Wrap[int](testutil.NewStaticSource([]int{1, 2}), NewManager(client), "other", time.Minute)
	_, err = other.Fetch(ctx, 0, 10)
	require.NoError(t, err)

	deleted, err := NewManager(client).Invalidate(ctx, "ints")
	require.NoError(t, err)
	assert.EqualValues(t, fetched, deleted)
	assert.Equal(t, []string{Key{Namespace: "other", Offset: 0, Limit: 10}.String()}, mr.Keys())

	_, err = build().Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*fetched, rec.Count())
}
