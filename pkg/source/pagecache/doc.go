// Package pagecache caches page fetches of a pagination.Source in Redis.
//
// Pages are stored per window (offset, limit) under a namespace, each with
// its own TTL. A cached page carries the total reported when it was fetched,
// so a cursor reading through the cache sees the source as it was at that
// time. Use a TTL that matches how quickly the underlying data changes.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := pagecache.NewManager(redisClient)
//	cached := pagecache.Wrap[Order](src, manager, "orders", 5*time.Minute)
//
//	orders, err := stream.NewBuilder[Order](cached).
//		Parallel(true).
//		Build().
//		Collect(ctx)
//
// Empty pages and failed fetches are never cached. Redis errors are logged
// and the fetch falls through to the wrapped source.
//
// # Keys
//
// Entries are stored under
//
//	pagedseq:page:<namespace>:<offset>:<limit>
//
// and Manager.Invalidate removes every entry of a namespace.
//
// # Metrics
//
//   - pagedseq_page_cache_hits_total
//   - pagedseq_page_cache_misses_total
//   - pagedseq_page_cache_errors_total{operation}
//   - pagedseq_page_cache_stored_bytes_total
package pagecache
