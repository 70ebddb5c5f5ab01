package workerpool

import (
	"context"
	"fmt"
)

// Future is a deferred result produced by a task running on a Pool.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn on the pool and returns its deferred result. When the pool
// rejects the task the future resolves immediately with the rejection error.
func Go[T any](p *Pool, fn func() (T, error)) *Future[T] {
	f, _ := TryGo(p, fn)
	return f
}

// TryGo is Go that also reports the rejection, so callers can tell a task
// that never ran from one that failed.
func TryGo[T any](p *Pool, fn func() (T, error)) (*Future[T], error) {
	f := &Future[T]{done: make(chan struct{})}

	err := p.Submit(func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("task panic: %v", r)
			}
		}()
		f.val, f.err = fn()
	})
	if err != nil {
		f.err = err
		close(f.done)
		return f, err
	}
	return f, nil
}

// Resolved returns a future that is already complete.
func Resolved[T any](val T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), val: val, err: err}
	close(f.done)
	return f
}

// Done is closed once the result is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx ends. Abandoning a
// future does not stop the task behind it.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get blocks until the result is available
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.val, f.err
}
