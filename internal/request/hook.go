package request

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "finscope/internal/request"

// Outcome labels recorded on the invocations counter.
const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeStale     = "stale"
	outcomeClosed    = "closed"
)

// Hook tracks the state of invocations of asynchronous actions returning T.
// A Hook is safe for concurrent use.
type Hook[T any] struct {
	name   string
	policy Policy
	log    *slog.Logger
	tracer trace.Tracer

	invocations metric.Int64Counter
	duration    metric.Float64Histogram

	mu     sync.Mutex
	state  State[T]
	seq    uint64
	closed bool
	tail   chan struct{} // turn channel of the last queued call (Serialized)

	subs      map[int]chan State[T]
	nextSubID int
}

// New creates an Idle hook. name identifies the hook in logs, metrics and
// spans.
func New[T any](name string, opts ...Option) *Hook[T] {
	if name == "" {
		name = "request"
	}
	o := buildOptions(opts)
	h := &Hook[T]{
		name:   name,
		policy: o.policy,
		log:    o.logger.With("hook", name),
		tracer: o.traces.Tracer(instrumentationName),
		subs:   make(map[int]chan State[T]),
	}

	meter := o.meters.Meter(instrumentationName)
	var err error
	h.invocations, err = meter.Int64Counter("request.invocations",
		metric.WithDescription("Settled or rejected hook invocations by outcome."))
	if err != nil {
		h.log.Warn("creating invocations counter", "error", err)
	}
	h.duration, err = meter.Float64Histogram("request.duration",
		metric.WithDescription("Time from action start to settlement."),
		metric.WithUnit("s"))
	if err != nil {
		h.log.Warn("creating duration histogram", "error", err)
	}
	return h
}

// Name returns the hook's name.
func (h *Hook[T]) Name() string { return h.name }

// Policy returns the hook's overlap policy.
func (h *Hook[T]) Policy() Policy { return h.policy }

// State returns a snapshot of the current state.
func (h *Hook[T]) State() State[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Status returns the current status.
func (h *Hook[T]) Status() Status { return h.State().Status }

// Loading reports whether the latest invocation is still pending.
func (h *Hook[T]) Loading() bool { return h.State().Status == Pending }

// Err returns the stored failure, nil unless the status is Failed.
func (h *Hook[T]) Err() error { return h.State().Err }

// Result returns the stored value, the zero value unless the status is
// Succeeded.
func (h *Hook[T]) Result() T { return h.State().Result }

// Start moves the hook to Pending and runs action on a new goroutine. The
// Pending transition is visible before Start returns. ctx is passed to the
// action unchanged; the hook itself never cancels it.
func (h *Hook[T]) Start(ctx context.Context, action Action[T]) *Call[T] {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.record(ctx, outcomeClosed)
		return rejectedCall[T](ErrClosed)
	}
	h.seq++
	c := newCall[T](h.seq)
	h.state = State[T]{Status: Pending, Seq: c.Seq}
	var prev chan struct{}
	if h.policy == Serialized {
		c.turn = make(chan struct{})
		prev = h.tail
		h.tail = c.turn
	}
	h.broadcastLocked(h.state)
	h.mu.Unlock()

	h.log.Debug("request started", "seq", c.Seq)
	go h.run(ctx, c, action, prev)
	return c
}

// Invoke starts action and waits for its settlement.
func (h *Hook[T]) Invoke(ctx context.Context, action Action[T]) (T, error) {
	return h.Start(ctx, action).Wait()
}

func (h *Hook[T]) run(ctx context.Context, c *Call[T], action Action[T], prev <-chan struct{}) {
	if c.turn != nil {
		defer close(c.turn)
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
		}
		if err := ctx.Err(); err != nil {
			// Settle now; the queue still advances only after prev.
			h.settle(ctx, c, time.Now(), err)
			close(c.done)
			<-prev
			return
		}
	}
	defer close(c.done)

	ctx, span := h.tracer.Start(ctx, h.name, trace.WithAttributes(
		attribute.Int64("request.seq", int64(c.Seq)),
		attribute.String("request.policy", h.policy.String()),
	))
	defer span.End()

	start := time.Now()
	val, err := safeRun(ctx, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		c.val = val
	}
	h.settle(ctx, c, start, err)
}

func safeRun[T any](ctx context.Context, action Action[T]) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			val, err = zero, &PanicError{Value: r}
		}
	}()
	return action(ctx)
}

// settle records c's outcome and applies it to the hook state when the
// policy allows.
func (h *Hook[T]) settle(ctx context.Context, c *Call[T], start time.Time, err error) {
	if err != nil {
		c.err = &ActionError{Hook: h.name, Seq: c.Seq, Err: err}
	}

	h.mu.Lock()
	var outcome string
	switch {
	case h.closed:
		outcome = outcomeClosed
	case h.policy != LastSettledWins && c.Seq != h.seq:
		outcome = outcomeStale
	default:
		if c.err != nil {
			h.state = State[T]{Status: Failed, Err: c.err, Seq: c.Seq}
			outcome = outcomeFailed
		} else {
			h.state = State[T]{Status: Succeeded, Result: c.val, Seq: c.Seq}
			outcome = outcomeSucceeded
		}
		h.broadcastLocked(h.state)
	}
	latest := h.seq
	h.mu.Unlock()

	elapsed := time.Since(start).Seconds()
	switch outcome {
	case outcomeStale:
		h.log.Warn("discarding stale settlement", "seq", c.Seq, "latest", latest)
	case outcomeClosed:
		h.log.Warn("discarding settlement after close", "seq", c.Seq)
	case outcomeFailed:
		h.log.Debug("request failed", "seq", c.Seq, "error", c.err, "elapsed", elapsed)
	default:
		h.log.Debug("request succeeded", "seq", c.Seq, "elapsed", elapsed)
	}
	h.record(ctx, outcome)
	if h.duration != nil {
		h.duration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("hook", h.name)))
	}
}

func (h *Hook[T]) record(ctx context.Context, outcome string) {
	if h.invocations == nil {
		return
	}
	h.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("hook", h.name),
		attribute.String("outcome", outcome),
	))
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

// Subscribe returns a channel receiving a snapshot after every state change.
// Delivery never blocks the hook: when a subscriber's buffer is full its
// oldest snapshot is discarded, so the latest state always arrives.
func (h *Hook[T]) Subscribe(bufSize int) (id int, ch <-chan State[T]) {
	if bufSize < 1 {
		bufSize = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c := make(chan State[T], bufSize)
	if h.closed {
		close(c)
		return -1, c
	}
	id = h.nextSubID
	h.nextSubID++
	h.subs[id] = c
	return id, c
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hook[T]) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.subs[id]; ok {
		close(c)
		delete(h.subs, id)
	}
}

// broadcastLocked is the only sender on subscriber channels, so after one
// receive frees a slot the second send cannot fail.
func (h *Hook[T]) broadcastLocked(s State[T]) {
	for _, c := range h.subs {
		select {
		case c <- s:
			continue
		default:
		}
		select {
		case <-c:
		default:
		}
		select {
		case c <- s:
		default:
		}
	}
}

// Close detaches the hook. In-flight actions keep running and their callers
// still get their outcome, but no later settlement changes the state. All
// subscriber channels are closed and later Start calls fail with ErrClosed.
func (h *Hook[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.subs {
		close(c)
		delete(h.subs, id)
	}
}
