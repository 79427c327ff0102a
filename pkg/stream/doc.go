// Package stream runs terminal operations over paged sources, sequentially
// or in parallel.
//
// A Stream is created from a pagination.Source (or any Spliterator) and is
// consumed by exactly one terminal operation:
//
//	s := stream.NewBuilder[Order](src).
//		PageSize(50).
//		Parallel(true).
//		Build()
//
//	orders, err := s.Collect(ctx)
//
// Parallel operations split the underlying cursor recursively and run the
// pieces on up to MaxConcurrency goroutines. Collect and ForEachOrdered keep
// source order; ForEach and Count do not. The first error, from the source
// or from ctx, cancels the remaining work and is returned unchanged.
//
// For pull-style iteration use All:
//
//	for order, err := range s.All(ctx) {
//		if err != nil {
//			return err
//		}
//		...
//	}
package stream
