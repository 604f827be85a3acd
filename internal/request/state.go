// Package request tracks the lifecycle of asynchronous operations.
//
// A Hook runs an Action on its own goroutine and records whether the most
// relevant invocation is in flight, failed or succeeded. Consumers read the
// state directly or subscribe to snapshots; the caller that started an
// invocation always receives that invocation's own value or error.
package request

import "context"

// Status is the lifecycle phase of a hook.
type Status int

const (
	Idle Status = iota
	Pending
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether s is Succeeded or Failed.
func (s Status) Terminal() bool {
	return s == Succeeded || s == Failed
}

// State is a snapshot of a hook. Err is set only when Status is Failed and
// Result is meaningful only when Status is Succeeded. Seq is the invocation
// that produced the snapshot, 0 while Idle.
type State[T any] struct {
	Status Status
	Err    error
	Result T
	Seq    uint64
}

// Loading reports whether the snapshot is Pending.
func (s State[T]) Loading() bool { return s.Status == Pending }

// Action is an asynchronous operation producing a T.
type Action[T any] func(ctx context.Context) (T, error)

// Bind1 closes fn over a single argument.
func Bind1[A, T any](fn func(context.Context, A) (T, error), a A) Action[T] {
	return func(ctx context.Context) (T, error) { return fn(ctx, a) }
}

// Bind2 closes fn over two arguments.
func Bind2[A, B, T any](fn func(context.Context, A, B) (T, error), a A, b B) Action[T] {
	return func(ctx context.Context) (T, error) { return fn(ctx, a, b) }
}

// Bind3 closes fn over three arguments.
func Bind3[A, B, C, T any](fn func(context.Context, A, B, C) (T, error), a A, b B, c C) Action[T] {
	return func(ctx context.Context) (T, error) { return fn(ctx, a, b, c) }
}
