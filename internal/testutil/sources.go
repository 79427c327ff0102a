package testutil

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/pagedseq/pkg/pagination"
)

// Ints returns [start, end) as a slice.
func Ints(start, end int) []int {
	out := make([]int, 0, max(end-start, 0))
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}

// Strings returns the decimal strings of [start, end).
func Strings(start, end int) []string {
	out := make([]string, 0, max(end-start, 0))
	for i := start; i < end; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return out
}

func window[T any](items []T, offset, limit, bound int64) []T {
	bound = min(bound, int64(len(items)))
	lo := min(max(offset, 0), bound)
	hi := max(lo, min(offset+limit, bound))
	return slices.Clone(items[lo:hi])
}

// StaticSource serves a fixed slice.
type StaticSource[T any] struct {
	items []T
}

// NewStaticSource creates a source over items.
func NewStaticSource[T any](items []T) *StaticSource[T] {
	return &StaticSource[T]{items: items}
}

// Fetch implements pagination.Source.
func (s *StaticSource[T]) Fetch(_ context.Context, offset, limit int64) (pagination.Page[T], error) {
	n := int64(len(s.items))
	return pagination.Page[T]{Items: window(s.items, offset, limit, n), Total: n}, nil
}

// DwindlingSource loses one item per fetch. Each call reports the current
// total, then shrinks it by one and serves the window clamped to the new
// total.
type DwindlingSource[T any] struct {
	mu    sync.Mutex
	items []T
	total int64
}

// NewDwindlingSource creates a dwindling source seeded with items.
func NewDwindlingSource[T any](items []T) *DwindlingSource[T] {
	return &DwindlingSource[T]{items: items, total: int64(len(items))}
}

// Fetch implements pagination.Source.
func (s *DwindlingSource[T]) Fetch(_ context.Context, offset, limit int64) (pagination.Page[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reported := s.total
	s.total--
	return pagination.Page[T]{Items: window(s.items, offset, limit, max(s.total, 0)), Total: reported}, nil
}

// GrowingSource appends a copy of its own prefix on every fetch. The growth
// shrinks by one each time (n-1, n-2, ...) so the size is capped. Each call
// reports the total from before its growth.
type GrowingSource[T any] struct {
	mu        sync.Mutex
	items     []T
	total     int64
	increment int64
}

// NewGrowingSource creates a growing source seeded with items.
func NewGrowingSource[T any](items []T) *GrowingSource[T] {
	seed := slices.Clone(items)
	return &GrowingSource[T]{items: seed, total: int64(len(seed)), increment: int64(len(seed))}
}

// Fetch implements pagination.Source.
func (s *GrowingSource[T]) Fetch(_ context.Context, offset, limit int64) (pagination.Page[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reported := s.total
	var grow int64
	if s.increment > 0 {
		s.increment--
		grow = s.increment
	}
	s.total += grow
	s.items = append(s.items, slices.Clone(s.items[:grow])...)

	return pagination.Page[T]{Items: window(s.items, offset, limit, int64(len(s.items))), Total: reported}, nil
}

// Len returns the current number of items.
func (s *GrowingSource[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// LatencySource delays every fetch of the wrapped source.
type LatencySource[T any] struct {
	Source  pagination.Source[T]
	Latency time.Duration
}

// Fetch implements pagination.Source. It returns ctx.Err() when cancelled
// while waiting.
func (s LatencySource[T]) Fetch(ctx context.Context, offset, limit int64) (pagination.Page[T], error) {
	select {
	case <-ctx.Done():
		return pagination.Page[T]{}, ctx.Err()
	case <-time.After(s.Latency):
	}
	return s.Source.Fetch(ctx, offset, limit)
}

// RecordingSource records every window requested from the wrapped source and
// the highest number of concurrent fetches.
type RecordingSource[T any] struct {
	source pagination.Source[T]

	mu          sync.Mutex
	windows     []Window
	inflight    int
	maxInflight int
}

// NewRecordingSource wraps src.
func NewRecordingSource[T any](src pagination.Source[T]) *RecordingSource[T] {
	return &RecordingSource[T]{source: src}
}

// Fetch implements pagination.Source.
func (s *RecordingSource[T]) Fetch(ctx context.Context, offset, limit int64) (pagination.Page[T], error) {
	s.mu.Lock()
	s.windows = append(s.windows, Window{Offset: offset, Limit: limit})
	s.inflight++
	s.maxInflight = max(s.maxInflight, s.inflight)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	return s.source.Fetch(ctx, offset, limit)
}

// Windows returns a copy of the recorded windows in call order.
func (s *RecordingSource[T]) Windows() []Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.windows)
}

// Count returns the number of fetches.
func (s *RecordingSource[T]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// MaxInflight returns the highest number of fetches seen running at once.
func (s *RecordingSource[T]) MaxInflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInflight
}

// FailingSource returns Err for any window starting at FailOffset and
// delegates everything else.
type FailingSource[T any] struct {
	Source     pagination.Source[T]
	FailOffset int64
	Err        error
}

// Fetch implements pagination.Source.
func (s FailingSource[T]) Fetch(ctx context.Context, offset, limit int64) (pagination.Page[T], error) {
	if offset == s.FailOffset {
		return pagination.Page[T]{}, s.Err
	}
	return s.Source.Fetch(ctx, offset, limit)
}
