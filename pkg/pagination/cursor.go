package pagination

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagedseq/pkg/logging"
)

// phase is the lifecycle state of a Cursor.
type phase uint8

const (
	// phasePending holds the dangling first page fetched by New.
	phasePending phase = iota

	// phaseActive holds zero or one materialized page.
	phaseActive

	// phaseExhausted has nothing left to yield.
	phaseExhausted
)

func (p phase) String() string {
	switch p {
	case phasePending:
		return "pending"
	case phaseActive:
		return "active"
	default:
		return "exhausted"
	}
}

// pager is the immutable part shared by a cursor and every sibling split
// off it.
type pager[T any] struct {
	source   Source[T]
	pageSize int64
	policy   EndPolicy
	logger   zerolog.Logger
}

// Cursor is a Spliterator over the logical range [start, end) of a paged
// Source. It fetches pages on demand and holds at most one page at a time.
//
// A Cursor must only be used by one goroutine at a time. Siblings returned
// by TrySplit own disjoint, page-aligned ranges and may be handed to other
// goroutines.
type Cursor[T any] struct {
	pager *pager[T]
	phase phase

	// page is the dangling first page in phasePending and the materialized
	// page (or nil) in phaseActive.
	page *sliceCursor[T]

	start int64
	end   int64

	// tail is set on the cursor owning the end of the sequence.
	tail bool
}

// New fetches the first page of src and returns a cursor over the whole
// sequence. The first page is held back until the cursor is traversed or
// split; its reported total provides the initial size estimate.
//
// A PageSize of zero or less returns an exhausted cursor without fetching.
// Errors returned by the source are passed through unchanged.
func New[T any](ctx context.Context, src Source[T], cfg Config) (*Cursor[T], error) {
	if cfg.PageSize <= 0 {
		return Empty[T](), nil
	}
	if src == nil {
		return nil, ErrNilSource
	}

	logger := logging.NewLogger(logging.ComponentPagination)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	p := &pager[T]{
		source:   src,
		pageSize: cfg.PageSize,
		policy:   cfg.EndPolicy,
		logger:   logger,
	}

	first, err := p.fetch(ctx, stageFirst, 0, cfg.PageSize)
	if err != nil {
		return nil, err
	}

	return &Cursor[T]{
		pager: p,
		phase: phasePending,
		page:  newSliceCursor(first.Items),
		end:   max(first.Total, 0),
		tail:  true,
	}, nil
}

// Empty returns an exhausted cursor.
func Empty[T any]() *Cursor[T] {
	return &Cursor[T]{phase: phaseExhausted}
}

// TryAdvance implements Spliterator. It moves on to the next page
// transparently when the current one is drained.
func (c *Cursor[T]) TryAdvance(ctx context.Context, visit func(T)) (bool, error) {
	for {
		page, err := c.ensurePage(ctx)
		if err != nil {
			return false, err
		}
		if page.advance(visit) {
			return true, nil
		}
		c.page = nil
		if c.start >= c.end {
			return false, nil
		}
	}
}

// ForEachRemaining implements Spliterator.
func (c *Cursor[T]) ForEachRemaining(ctx context.Context, visit func(T) bool) error {
	for {
		page, err := c.ensurePage(ctx)
		if err != nil {
			return err
		}

		if !page.drain(visit) {
			return nil
		}

		c.page = nil
		if c.start >= c.end {
			return nil
		}
	}
}

// TrySplit implements Spliterator.
//
// The dangling first page is handed off as is. A materialized page is split
// within itself. A range spanning more than one page is cut at the
// page-aligned midpoint. Anything smaller is fetched and split within the
// fetched page.
func (c *Cursor[T]) TrySplit(ctx context.Context) (Spliterator[T], error) {
	switch c.phase {
	case phaseExhausted:
		return nil, nil
	case phasePending:
		first := c.page
		c.page = nil
		c.phase = phaseActive
		c.start = first.size()
		c.clampEnd()
		c.recordSplit(splitFirstPage, 0, first.size())
		return first, nil
	}

	if c.page != nil {
		return c.splitPage(ctx, c.page)
	}

	pageSize := c.pager.pageSize
	if c.end-c.start > pageSize {
		mid := c.start + (c.end-c.start)/2
		mid = mid / pageSize * pageSize
		if mid <= c.start {
			mid += pageSize
		}

		sibling := &Cursor[T]{
			pager: c.pager,
			phase: phaseActive,
			start: c.start,
			end:   mid,
		}
		c.start = mid
		c.recordSplit(splitRange, sibling.start, sibling.end)
		return sibling, nil
	}

	page, err := c.ensurePage(ctx)
	if err != nil {
		return nil, err
	}
	return c.splitPage(ctx, page)
}

// EstimateSize implements Spliterator. With a page materialized it is the
// page's exact remainder, otherwise the width of the unfetched range.
func (c *Cursor[T]) EstimateSize() int64 {
	switch {
	case c.phase == phaseExhausted:
		return 0
	case c.phase == phaseActive && c.page != nil:
		return c.page.EstimateSize()
	default:
		return c.end - c.start
	}
}

// Characteristics implements Spliterator.
func (c *Cursor[T]) Characteristics() Characteristics {
	return pagedCharacteristics
}

// ensurePage returns the page to traverse or split next, fetching one when
// nothing is materialized.
func (c *Cursor[T]) ensurePage(ctx context.Context) (*sliceCursor[T], error) {
	switch c.phase {
	case phaseExhausted:
		return newSliceCursor[T](nil), nil
	case phasePending:
		c.phase = phaseActive
		c.start = c.page.size()
		c.clampEnd()
		return c.page, nil
	}

	if c.page != nil {
		return c.page, nil
	}
	if c.start >= c.end {
		c.phase = phaseExhausted
		return newSliceCursor[T](nil), nil
	}

	page, err := c.pager.fetch(ctx, stageNext, c.start, min(c.end-c.start, c.pager.pageSize))
	if err != nil {
		return nil, err
	}

	c.observeTotal(page.Total)
	c.start += int64(len(page.Items))
	if len(page.Items) == 0 {
		c.end = c.start
	}
	c.clampEnd()

	c.page = newSliceCursor(page.Items)
	return c.page, nil
}

// observeTotal applies the end policy to a total reported after
// construction.
func (c *Cursor[T]) observeTotal(total int64) {
	switch c.pager.policy {
	case EndShrink:
		if total < c.end {
			c.end = total
		}
	case EndTrack:
		if total < c.end || c.tail {
			c.end = total
		}
	}
}

// clampEnd restores start <= end.
func (c *Cursor[T]) clampEnd() {
	if c.end < c.start {
		c.end = c.start
	}
}

func (c *Cursor[T]) splitPage(ctx context.Context, page *sliceCursor[T]) (Spliterator[T], error) {
	prefix, err := page.TrySplit(ctx)
	if err != nil || prefix == nil {
		return nil, err
	}
	Splits.WithLabelValues(splitInPage).Inc()
	return prefix, nil
}

func (c *Cursor[T]) recordSplit(kind string, from, to int64) {
	Splits.WithLabelValues(kind).Inc()
	c.pager.logger.Debug().
		Str("kind", kind).
		Int64("from", from).
		Int64("to", to).
		Int64("remaining_start", c.start).
		Int64("remaining_end", c.end).
		Msg("Cursor split")
}

// fetch calls the source and records metrics. Errors are returned as is.
func (p *pager[T]) fetch(ctx context.Context, stage string, offset, limit int64) (Page[T], error) {
	started := time.Now()
	page, err := p.source.Fetch(ctx, offset, limit)
	elapsed := time.Since(started)
	PageFetchDuration.WithLabelValues(stage).Observe(elapsed.Seconds())

	if err != nil {
		PageFetchErrors.WithLabelValues(stage).Inc()
		p.logger.Warn().
			Err(err).
			Str("stage", stage).
			Int64("offset", offset).
			Int64("limit", limit).
			Msg("Page fetch failed")
		return Page[T]{}, err
	}

	PageFetches.WithLabelValues(stage).Inc()
	ItemsFetched.Add(float64(len(page.Items)))
	p.logger.Debug().
		Str("stage", stage).
		Int64("offset", offset).
		Int64("limit", limit).
		Int("items", len(page.Items)).
		Int64("total", page.Total).
		Dur("duration", elapsed).
		Msg("Fetched page")

	return page, nil
}
