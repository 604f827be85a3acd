package request

import "context"

// Call is the handle of a single invocation.
type Call[T any] struct {
	// Seq is the invocation's sequence number, 0 if it was rejected.
	Seq uint64

	done chan struct{}
	turn chan struct{} // closed when the next Serialized call may run
	val  T
	err  error
}

func newCall[T any](seq uint64) *Call[T] {
	return &Call[T]{Seq: seq, done: make(chan struct{})}
}

func rejectedCall[T any](err error) *Call[T] {
	c := newCall[T](0)
	c.err = err
	close(c.done)
	return c
}

// Done is closed once the invocation has settled.
func (c *Call[T]) Done() <-chan struct{} { return c.done }

// Wait blocks until the invocation settles and returns its outcome.
func (c *Call[T]) Wait() (T, error) {
	<-c.done
	return c.val, c.err
}

// Await is Wait bounded by ctx. Giving up does not cancel the action; the
// invocation still settles into the hook.
func (c *Call[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
