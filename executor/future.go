package executor

import (
	"context"
	"sync"
)

// Promise is the write side of a Future.
type Promise[T any] interface {
	Complete(T)
	Error(error)
}

// Future is the read side of an asynchronous value.
type Future[T any] interface {
	// Get blocks until the value is available or ctx is done.
	Get(ctx context.Context) (T, error)
	// Done is closed once the value is available.
	Done() <-chan struct{}
}

// CompletableFuture is both sides of an asynchronous value.
type CompletableFuture[T any] interface {
	Future[T]
	Promise[T]
}

type future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture creates an unresolved future. Only the first Complete or Error counts.
func NewFuture[T any]() CompletableFuture[T] {
	return &future[T]{done: make(chan struct{})}
}

func (f *future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *future[T]) Complete(value T) {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
}

func (f *future[T]) Error(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}
