// Package resources holds the process-wide handles to external services.
// Each handle is built on first use and then shared; Prefetch can build them
// ahead of time in the background.
package resources

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Lazy builds a value on first Get and returns the same value afterwards.
// A failed build is not cached, so the next Get tries again. Once a value is
// stored it is never replaced.
type Lazy[T any] struct {
	name  string
	build func(context.Context) (T, error)

	// sem holds one token; whoever takes it may build.
	sem chan struct{}
	val atomic.Pointer[T]
}

// NewLazy creates a Lazy that constructs its value with build.
func NewLazy[T any](name string, build func(context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{name: name, build: build, sem: make(chan struct{}, 1)}
}

// Name identifies the handle in logs.
func (l *Lazy[T]) Name() string { return l.name }

// Get returns the value, building it if needed. Concurrent callers wait for
// a single build; a caller whose ctx ends while waiting returns ctx.Err().
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	if p := l.val.Load(); p != nil {
		return *p, nil
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("waiting for %s: %w", l.name, ctx.Err())
	}
	defer func() { <-l.sem }()
	if p := l.val.Load(); p != nil {
		return *p, nil
	}
	v, err := l.build(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("initialising %s: %w", l.name, err)
	}
	l.val.Store(&v)
	return v, nil
}

// Peek returns the value if it has been built, without building it.
func (l *Lazy[T]) Peek() (T, bool) {
	if p := l.val.Load(); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Loaded reports whether the value has been built.
func (l *Lazy[T]) Loaded() bool {
	return l.val.Load() != nil
}

// Warm builds the value if needed and discards it.
func (l *Lazy[T]) Warm(ctx context.Context) error {
	_, err := l.Get(ctx)
	return err
}
