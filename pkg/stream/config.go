package stream

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagedseq/pkg/pagination"
)

// leafFactor sets how many leaves per worker the parallel engine aims for.
const leafFactor = 4

// minParallelism is the lowest default MaxConcurrency. Page fetches wait on
// I/O rather than CPU.
const minParallelism = 4

// Config holds stream configuration.
type Config struct {
	// PageSize is the number of items fetched per page.
	// Zero or less yields an empty stream without fetching.
	PageSize int64

	// Parallel enables fork/join traversal over cursor splits.
	Parallel bool

	// MaxConcurrency caps the goroutines fetching pages in a parallel
	// terminal operation (default: GOMAXPROCS, at least 4). One disables
	// concurrent fetching while keeping the parallel code path.
	MaxConcurrency int

	// EndPolicy is passed to the underlying cursor.
	EndPolicy pagination.EndPolicy

	// Logger receives stream and cursor events (default: component loggers).
	Logger *zerolog.Logger
}

// DefaultConfig returns the default stream configuration: pages of 100,
// sequential traversal.
func DefaultConfig() Config {
	return Config{
		PageSize:       pagination.DefaultPageSize,
		Parallel:       false,
		MaxConcurrency: defaultConcurrency(),
		EndPolicy:      pagination.EndFixed,
	}
}

func (c Config) normalize() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultConcurrency()
	}
	return c
}

func defaultConcurrency() int {
	return max(runtime.GOMAXPROCS(0), minParallelism)
}

func (c Config) cursorConfig() pagination.Config {
	return pagination.Config{
		PageSize:  c.PageSize,
		EndPolicy: c.EndPolicy,
		Logger:    c.Logger,
	}
}

// Builder assembles a Stream or a bare Spliterator over a paged source.
type Builder[T any] struct {
	source pagination.Source[T]
	cfg    Config
}

// NewBuilder starts a builder for src with DefaultConfig.
func NewBuilder[T any](src pagination.Source[T]) *Builder[T] {
	return &Builder[T]{source: src, cfg: DefaultConfig()}
}

// PageSize sets the page size.
func (b *Builder[T]) PageSize(n int64) *Builder[T] {
	b.cfg.PageSize = n
	return b
}

// Parallel selects parallel (true) or sequential (false) traversal.
func (b *Builder[T]) Parallel(parallel bool) *Builder[T] {
	b.cfg.Parallel = parallel
	return b
}

// MaxConcurrency caps parallel goroutines.
func (b *Builder[T]) MaxConcurrency(n int) *Builder[T] {
	b.cfg.MaxConcurrency = n
	return b
}

// EndPolicy sets the cursor end policy.
func (b *Builder[T]) EndPolicy(p pagination.EndPolicy) *Builder[T] {
	b.cfg.EndPolicy = p
	return b
}

// Logger sets the logger handed to the stream and its cursor.
func (b *Builder[T]) Logger(l zerolog.Logger) *Builder[T] {
	b.cfg.Logger = &l
	return b
}

// Config returns the configuration built so far.
func (b *Builder[T]) Config() Config {
	return b.cfg
}

// Build returns a lazy stream. Nothing is fetched until a terminal
// operation runs.
func (b *Builder[T]) Build() *Stream[T] {
	return FromSource(b.source, b.cfg)
}

// Spliterator creates the cursor right away, fetching the first page.
func (b *Builder[T]) Spliterator(ctx context.Context) (pagination.Spliterator[T], error) {
	cur, err := pagination.New(ctx, b.source, b.cfg.cursorConfig())
	if err != nil {
		return nil, err
	}
	return cur, nil
}
