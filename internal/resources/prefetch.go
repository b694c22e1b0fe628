package resources

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Warmer is a handle that can be built ahead of use.
type Warmer interface {
	Name() string
	Warm(ctx context.Context) error
}

// Prefetch builds every handle concurrently and returns the first error.
// A failure does not stop the other builds and is logged; the handle stays
// unbuilt and is retried on its first real use.
func Prefetch(ctx context.Context, warmers ...Warmer) error {
	var g errgroup.Group
	for _, w := range warmers {
		g.Go(func() error {
			start := time.Now()
			if err := w.Warm(ctx); err != nil {
				slog.Warn("prefetch failed", "resource", w.Name(), "error", err)
				return err
			}
			slog.Debug("prefetched", "resource", w.Name(), "duration_ms", time.Since(start).Milliseconds())
			return nil
		})
	}
	return g.Wait()
}
