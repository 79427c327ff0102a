package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Sternrassler/pagedseq/pkg/pagination"
)

// forker runs one parallel terminal operation. It splits spliterators until
// they are at or below threshold, hands prefixes to new goroutines while
// slots are free and runs them inline otherwise.
type forker[T any] struct {
	slots     *semaphore.Weighted
	threshold int64
	group     errgroup.Group
	cancel    context.CancelCauseFunc
}

func newForker[T any](cfg Config, root pagination.Spliterator[T]) *forker[T] {
	workers := max(cfg.MaxConcurrency, 1)
	return &forker[T]{
		// The goroutine walking the root holds one slot implicitly.
		slots:     semaphore.NewWeighted(int64(workers - 1)),
		threshold: max(root.EstimateSize()/int64(workers*leafFactor), 1),
	}
}

// forEach visits every element of root, concurrently and unordered, and
// returns the number of elements visited.
func (f *forker[T]) forEach(ctx context.Context, root pagination.Spliterator[T], visit func(T)) (int64, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	f.cancel = cancel

	var count atomic.Int64
	var walk func(sp pagination.Spliterator[T]) error
	walk = func(sp pagination.Spliterator[T]) error {
		for sp.EstimateSize() > f.threshold {
			prefix, err := f.split(ctx, sp)
			if err != nil {
				return err
			}
			if prefix == nil {
				break
			}
			if f.slots.TryAcquire(1) {
				f.group.Go(func() error {
					defer f.slots.Release(1)
					return walk(prefix)
				})
				continue
			}
			if err := walk(prefix); err != nil {
				return err
			}
		}
		n, err := f.leaf(ctx, sp, visit)
		count.Add(n)
		return err
	}

	err := walk(root)
	if werr := f.group.Wait(); err == nil {
		err = werr
	}
	return count.Load(), f.cause(ctx, err)
}

// forEachOrdered visits every element of root in encounter order from the
// calling goroutine. Leaves are fetched concurrently and each one is handed
// to visit as soon as every leaf to its left has been delivered.
func (f *forker[T]) forEachOrdered(ctx context.Context, root pagination.Spliterator[T], visit func(T)) (int64, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	f.cancel = cancel

	leaves := newOrderedLeaves[T]()
	rootNode := leaves.push()
	f.group.Go(func() error {
		err := f.walkOrdered(ctx, root, rootNode, leaves)
		if err != nil {
			leaves.fail(err)
		}
		return err
	})

	var n int64
	var err error
	for {
		var items []T
		var ok bool
		items, ok, err = leaves.next()
		if err != nil || !ok {
			break
		}
		for _, item := range items {
			visit(item)
		}
		n += int64(len(items))
	}
	if err != nil {
		cancel(err)
	}
	if werr := f.group.Wait(); err == nil {
		err = werr
	}
	return n, f.cause(ctx, err)
}

// walkOrdered splits sp down to the threshold. Every prefix gets a node in
// front of node, so leaves complete into their encounter position.
func (f *forker[T]) walkOrdered(ctx context.Context, sp pagination.Spliterator[T], node *leafNode[T], leaves *orderedLeaves[T]) error {
	for sp.EstimateSize() > f.threshold {
		prefix, err := f.split(ctx, sp)
		if err != nil {
			return err
		}
		if prefix == nil {
			break
		}
		prefixNode := leaves.insertBefore(node)
		if f.slots.TryAcquire(1) {
			f.group.Go(func() error {
				defer f.slots.Release(1)
				err := f.walkOrdered(ctx, prefix, prefixNode, leaves)
				if err != nil {
					leaves.fail(err)
				}
				return err
			})
			continue
		}
		if err := f.walkOrdered(ctx, prefix, prefixNode, leaves); err != nil {
			return err
		}
	}

	items := make([]T, 0, min(sp.EstimateSize(), maxPrealloc))
	if _, err := f.leaf(ctx, sp, func(item T) { items = append(items, item) }); err != nil {
		return err
	}
	leaves.complete(node, items)
	return nil
}

// orderedLeaves is a list of leaves in encounter order. Workers fill nodes in
// any order while a single consumer pops them from the head.
type orderedLeaves[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond
	head *leafNode[T]
	err  error
}

type leafNode[T any] struct {
	items      []T
	ready      bool
	prev, next *leafNode[T]
}

func newOrderedLeaves[T any]() *orderedLeaves[T] {
	l := &orderedLeaves[T]{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// push starts the list with its only node.
func (l *orderedLeaves[T]) push() *leafNode[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head = &leafNode[T]{}
	return l.head
}

func (l *orderedLeaves[T]) insertBefore(n *leafNode[T]) *leafNode[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	node := &leafNode[T]{prev: n.prev, next: n}
	if n.prev != nil {
		n.prev.next = node
	} else {
		l.head = node
	}
	n.prev = node
	return node
}

func (l *orderedLeaves[T]) complete(n *leafNode[T], items []T) {
	l.mu.Lock()
	n.items = items
	n.ready = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

func (l *orderedLeaves[T]) fail(err error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
	l.cond.Broadcast()
}

// next blocks until the head leaf is ready and pops it. It reports false once
// the list is empty.
func (l *orderedLeaves[T]) next() ([]T, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		switch {
		case l.err != nil:
			return nil, false, l.err
		case l.head == nil:
			return nil, false, nil
		case l.head.ready:
			n := l.head
			l.head = n.next
			if l.head != nil {
				l.head.prev = nil
			}
			n.next = nil
			return n.items, true, nil
		}
		l.cond.Wait()
	}
}

func (f *forker[T]) split(ctx context.Context, sp pagination.Spliterator[T]) (pagination.Spliterator[T], error) {
	prefix, err := sp.TrySplit(ctx)
	if err != nil {
		f.cancel(err)
		return nil, err
	}
	return prefix, nil
}

func (f *forker[T]) leaf(ctx context.Context, sp pagination.Spliterator[T], visit func(T)) (int64, error) {
	n, err := forEachSequential(ctx, sp, visit)
	if err != nil {
		f.cancel(err)
	}
	return n, err
}

// cause prefers the first failure recorded on ctx over the cancellation it
// triggered in sibling branches.
func (f *forker[T]) cause(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return err
}
