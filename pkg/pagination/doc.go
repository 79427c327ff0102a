// Package pagination turns an offset/limit paged source into a single lazy,
// splittable sequence.
//
// Many backends (HTTP APIs, Redis lists, SQL tables) can only be read in
// bounded windows and report their total size alongside each window. A
// Cursor walks such a source page by page, fetching each page exactly once,
// and can be split recursively into independent siblings for parallel
// traversal:
//
//	src := pagination.SourceFunc[Order](func(ctx context.Context, offset, limit int64) (pagination.Page[Order], error) {
//		return api.ListOrders(ctx, offset, limit)
//	})
//	cur, err := pagination.New(ctx, src, pagination.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	err = cur.ForEachRemaining(ctx, func(o Order) bool {
//		process(o)
//		return true
//	})
//
// The cursor:
//   - Fetches page 0 at construction to learn the total size
//   - Holds that page back until the first traversal or split
//   - Splits on page boundaries so siblings never fetch the same window
//   - Tolerates sources whose total shrinks or grows between fetches (see
//     EndPolicy)
//   - Passes source errors through unchanged; it neither retries nor caches
//
// Usually a Cursor is not driven directly but through package stream, which
// adds sequential, parallel and ordered terminal operations.
package pagination
