package lifecycle

import (
	"context"
	"sync"
)

// Future is a single-write result cell. The first Resolve wins; readers
// block on Done or Wait.
type Future[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	value T
}

// NewFuture returns an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve stores v and releases all waiters. It reports false, and changes
// nothing, if the future was already resolved.
func (f *Future[T]) Resolve(v T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return false
	default:
	}
	f.value = v
	close(f.done)
	return true
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether Resolve has been called.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Value returns the resolved value and true, or the zero value and false.
func (f *Future[T]) Value() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return f.value, true
	default:
		var zero T
		return zero, false
	}
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		v, _ := f.Value()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
