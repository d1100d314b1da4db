// Package task runs a single asynchronous operation and lets the caller
// await its result at a chosen point instead of nesting callbacks.
package task

import (
	"context"
	"fmt"
)

// Task is the pending result of one asynchronous operation
type Task[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go starts fn in its own goroutine. A panic inside fn is reported as the
// task's error.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		t.value, t.err = fn(ctx)
	}()
	return t
}

// Done returns a value of type T already resolved
func Done[T any](value T, err error) *Task[T] {
	t := &Task[T]{done: make(chan struct{}), value: value, err: err}
	close(t.done)
	return t
}

// Await blocks until the task finishes or ctx ends
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Finished is closed once the task has a result
func (t *Task[T]) Finished() <-chan struct{} {
	return t.done
}

// Ready reports whether the task has finished
func (t *Task[T]) Ready() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
