package pagination

import (
	"context"
	"strings"
)

// Characteristics describes structural properties of a Spliterator.
type Characteristics uint8

const (
	// Ordered means elements are encountered in source order.
	Ordered Characteristics = 1 << iota

	// Sized means EstimateSize is the size of the remaining range.
	Sized

	// Subsized means every spliterator produced by TrySplit is Sized.
	Subsized

	// Immutable means callers cannot change the element source through the
	// spliterator.
	Immutable
)

// pagedCharacteristics is reported by every spliterator in this package.
const pagedCharacteristics = Ordered | Sized | Subsized | Immutable

// Has reports whether all bits of other are set in c.
func (c Characteristics) Has(other Characteristics) bool {
	return c&other == other
}

func (c Characteristics) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, f := range []struct {
		bit  Characteristics
		name string
	}{
		{Ordered, "ordered"},
		{Sized, "sized"},
		{Subsized, "subsized"},
		{Immutable, "immutable"},
	} {
		if c.Has(f.bit) {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, "|")
}

// Spliterator is a lazy cursor over a range of elements that can be
// traversed one element at a time, drained in bulk, or split into an
// independent prefix for divide-and-conquer processing.
//
// A Spliterator is not safe for concurrent use. Parallelism comes from
// handing the spliterators returned by TrySplit to other goroutines; from
// then on each value is owned by exactly one goroutine.
type Spliterator[T any] interface {
	// TryAdvance passes the next element to visit and reports whether one
	// existed.
	TryAdvance(ctx context.Context, visit func(T)) (bool, error)

	// ForEachRemaining passes every remaining element to visit in order.
	// It returns early when visit returns false; that element counts as
	// consumed.
	ForEachRemaining(ctx context.Context, visit func(T) bool) error

	// TrySplit hands off a prefix of the remaining elements as a new
	// Spliterator, or returns nil when the range cannot be split.
	TrySplit(ctx context.Context) (Spliterator[T], error)

	// EstimateSize returns the number of remaining elements as far as this
	// spliterator knows. It is advisory for paged sources.
	EstimateSize() int64

	// Characteristics returns the characteristic set. Split results report
	// the same set as their parent.
	Characteristics() Characteristics
}

// sliceCursor is the in-memory sub-cursor of a materialized page.
type sliceCursor[T any] struct {
	items []T
	lo    int
	hi    int
}

// FromSlice returns a Spliterator over items. The slice is not copied and
// must not be modified while the spliterator is in use.
func FromSlice[T any](items []T) Spliterator[T] {
	return newSliceCursor(items)
}

func newSliceCursor[T any](items []T) *sliceCursor[T] {
	return &sliceCursor[T]{items: items, hi: len(items)}
}

func (s *sliceCursor[T]) TryAdvance(_ context.Context, visit func(T)) (bool, error) {
	return s.advance(visit), nil
}

func (s *sliceCursor[T]) ForEachRemaining(_ context.Context, visit func(T) bool) error {
	s.drain(visit)
	return nil
}

// advance visits the next item, reporting false when none is left.
func (s *sliceCursor[T]) advance(visit func(T)) bool {
	if s.lo >= s.hi {
		return false
	}
	item := s.items[s.lo]
	s.lo++
	visit(item)
	return true
}

// drain visits the remaining items until visit returns false. It reports
// whether every item was visited.
func (s *sliceCursor[T]) drain(visit func(T) bool) bool {
	for s.lo < s.hi {
		item := s.items[s.lo]
		s.lo++
		if !visit(item) {
			return false
		}
	}
	return true
}

// TrySplit hands off the lower half of the remaining items.
func (s *sliceCursor[T]) TrySplit(context.Context) (Spliterator[T], error) {
	mid := s.lo + (s.hi-s.lo)/2
	if s.lo >= mid {
		return nil, nil
	}
	prefix := &sliceCursor[T]{items: s.items, lo: s.lo, hi: mid}
	s.lo = mid
	return prefix, nil
}

func (s *sliceCursor[T]) EstimateSize() int64 {
	return int64(s.hi - s.lo)
}

func (s *sliceCursor[T]) Characteristics() Characteristics {
	return pagedCharacteristics
}

// size is the exact number of items the page was materialized with.
func (s *sliceCursor[T]) size() int64 {
	return int64(len(s.items))
}
