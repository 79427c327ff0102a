package pagination

import "context"

// Page is the result of a single page fetch.
type Page[T any] struct {
	// Items is the window [offset, offset+len(Items)) of the source as
	// currently known. len(Items) never exceeds the requested limit.
	Items []T

	// Total is the source's total element count at the time of the fetch.
	// It may differ from the Total of earlier fetches.
	Total int64
}

// Source is a data source that can only be read in bounded pages.
//
// Implementations clamp the window to their current size and must not fail
// because offset lies beyond the current end (a shrinking source returns an
// empty page instead). When a sequence is traversed in parallel, Fetch is
// called concurrently from several goroutines with disjoint windows.
type Source[T any] interface {
	Fetch(ctx context.Context, offset, limit int64) (Page[T], error)
}

// SourceFunc adapts an ordinary function to the Source interface.
type SourceFunc[T any] func(ctx context.Context, offset, limit int64) (Page[T], error)

// Fetch calls f(ctx, offset, limit).
func (f SourceFunc[T]) Fetch(ctx context.Context, offset, limit int64) (Page[T], error) {
	return f(ctx, offset, limit)
}
