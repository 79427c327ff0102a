package stream

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagedseq/pkg/logging"
	"github.com/Sternrassler/pagedseq/pkg/pagination"
)

// ErrStreamConsumed is returned when a terminal operation runs on a stream
// that has already been used.
var ErrStreamConsumed = errors.New("stream has already been consumed")

// Traversal modes reported in logs.
const (
	modeSequential      = "sequential"
	modeParallel        = "parallel"
	modeParallelOrdered = "parallel_ordered"
)

// Stream is a single-use lazy sequence backed by a Spliterator.
type Stream[T any] struct {
	open     func(ctx context.Context) (pagination.Spliterator[T], error)
	cfg      Config
	logger   zerolog.Logger
	consumed atomic.Bool
}

// FromSource returns a stream over a paged source. The cursor, and with it
// the first page fetch, is created when a terminal operation runs.
func FromSource[T any](src pagination.Source[T], cfg Config) *Stream[T] {
	cfg = cfg.normalize()
	return newStream(cfg, func(ctx context.Context) (pagination.Spliterator[T], error) {
		cur, err := pagination.New(ctx, src, cfg.cursorConfig())
		if err != nil {
			return nil, err
		}
		return cur, nil
	})
}

// FromSpliterator returns a stream over an existing spliterator. cfg.PageSize
// is ignored.
func FromSpliterator[T any](sp pagination.Spliterator[T], cfg Config) *Stream[T] {
	return newStream(cfg.normalize(), func(context.Context) (pagination.Spliterator[T], error) {
		return sp, nil
	})
}

func newStream[T any](cfg Config, open func(context.Context) (pagination.Spliterator[T], error)) *Stream[T] {
	logger := logging.NewLogger(logging.ComponentStream)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Stream[T]{open: open, cfg: cfg, logger: logger}
}

// IsParallel reports whether terminal operations run in parallel.
func (s *Stream[T]) IsParallel() bool {
	return s.cfg.Parallel
}

// ForEach calls fn for every element. In parallel mode fn is called
// concurrently from several goroutines in no particular order.
func (s *Stream[T]) ForEach(ctx context.Context, fn func(T)) error {
	return s.run(ctx, "for_each", func(ctx context.Context, sp pagination.Spliterator[T]) (string, int64, error) {
		if !s.cfg.Parallel {
			n, err := forEachSequential(ctx, sp, fn)
			return modeSequential, n, err
		}
		n, err := newForker[T](s.cfg, sp).forEach(ctx, sp, fn)
		return modeParallel, n, err
	})
}

// ForEachOrdered calls fn for every element in source order from the calling
// goroutine. In parallel mode pages are fetched concurrently and a finished
// leaf is delivered as soon as everything before it has been.
func (s *Stream[T]) ForEachOrdered(ctx context.Context, fn func(T)) error {
	return s.run(ctx, "for_each_ordered", func(ctx context.Context, sp pagination.Spliterator[T]) (string, int64, error) {
		if !s.cfg.Parallel {
			n, err := forEachSequential(ctx, sp, fn)
			return modeSequential, n, err
		}
		n, err := newForker[T](s.cfg, sp).forEachOrdered(ctx, sp, fn)
		return modeParallelOrdered, n, err
	})
}

// Collect returns all elements in source order.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	err := s.run(ctx, "collect", func(ctx context.Context, sp pagination.Spliterator[T]) (string, int64, error) {
		out = make([]T, 0, min(sp.EstimateSize(), maxPrealloc))
		collect := func(item T) { out = append(out, item) }
		if !s.cfg.Parallel {
			n, err := forEachSequential(ctx, sp, collect)
			return modeSequential, n, err
		}
		n, err := newForker[T](s.cfg, sp).forEachOrdered(ctx, sp, collect)
		return modeParallelOrdered, n, err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of elements.
func (s *Stream[T]) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.run(ctx, "count", func(ctx context.Context, sp pagination.Spliterator[T]) (string, int64, error) {
		noop := func(T) {}
		var (
			mode = modeSequential
			err  error
		)
		if s.cfg.Parallel {
			mode = modeParallel
			count, err = newForker[T](s.cfg, sp).forEach(ctx, sp, noop)
		} else {
			count, err = forEachSequential(ctx, sp, noop)
		}
		return mode, count, err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// All returns a pull-style sequence of the elements in source order. It
// always traverses sequentially and stops fetching when the loop breaks.
// A failure is yielded once, as the last pair, with the zero value.
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		sp, err := s.begin(ctx)
		if err != nil {
			yield(zero, err)
			return
		}

		stopped := false
		err = sp.ForEachRemaining(ctx, func(item T) bool {
			if !yield(item, nil) {
				stopped = true
				return false
			}
			return ctx.Err() == nil
		})
		if stopped {
			return
		}
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			yield(zero, err)
		}
	}
}

// Spliterator hands out the underlying spliterator for callers that drive
// traversal themselves. It consumes the stream.
func (s *Stream[T]) Spliterator(ctx context.Context) (pagination.Spliterator[T], error) {
	return s.begin(ctx)
}

// maxPrealloc bounds the capacity reserved from a size estimate.
const maxPrealloc = 1 << 16

func (s *Stream[T]) begin(ctx context.Context) (pagination.Spliterator[T], error) {
	if s.consumed.Swap(true) {
		return nil, ErrStreamConsumed
	}
	return s.open(ctx)
}

type terminal[T any] func(ctx context.Context, sp pagination.Spliterator[T]) (mode string, items int64, err error)

func (s *Stream[T]) run(ctx context.Context, op string, fn terminal[T]) error {
	started := time.Now()

	sp, err := s.begin(ctx)
	if err != nil {
		return err
	}

	mode, items, err := fn(ctx, sp)
	OperationDuration.WithLabelValues(op, mode).Observe(time.Since(started).Seconds())
	if err != nil {
		Operations.WithLabelValues(op, mode, "error").Inc()
		s.logger.Warn().
			Err(err).
			Str("op", op).
			Str("mode", mode).
			Int64("items", items).
			Dur("duration", time.Since(started)).
			Msg("Stream operation failed")
		return err
	}

	Operations.WithLabelValues(op, mode, "ok").Inc()
	s.logger.Info().
		Str("op", op).
		Str("mode", mode).
		Int64("items", items).
		Dur("duration", time.Since(started)).
		Msg("Stream operation complete")
	return nil
}

// forEachSequential drains sp on the calling goroutine.
func forEachSequential[T any](ctx context.Context, sp pagination.Spliterator[T], fn func(T)) (int64, error) {
	var n int64
	err := sp.ForEachRemaining(ctx, func(item T) bool {
		fn(item)
		n++
		return ctx.Err() == nil
	})
	if err == nil {
		err = ctx.Err()
	}
	return n, err
}
