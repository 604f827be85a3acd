package request

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Policy decides how overlapping invocations on one hook interact.
type Policy int

const (
	// LatestWins applies only the settlement of the most recently started
	// invocation. Older settlements are returned to their callers but do not
	// touch the hook's state.
	LatestWins Policy = iota
	// LastSettledWins applies every settlement in completion order.
	LastSettledWins
	// Serialized runs actions one at a time in start order. State follows
	// the most recently started invocation, as with LatestWins.
	Serialized
)

func (p Policy) String() string {
	switch p {
	case LatestWins:
		return "latest-wins"
	case LastSettledWins:
		return "last-settled-wins"
	case Serialized:
		return "serialized"
	}
	return "unknown"
}

// ParsePolicy maps a configuration string to a Policy. Empty means
// LatestWins.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "", "latest-wins":
		return LatestWins, true
	case "last-settled-wins":
		return LastSettledWins, true
	case "serialized":
		return Serialized, true
	}
	return LatestWins, false
}

type options struct {
	policy Policy
	logger *slog.Logger
	meters metric.MeterProvider
	traces trace.TracerProvider
}

// Option configures a Hook.
type Option func(*options)

// WithPolicy sets the overlap policy.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithLogger sets the logger; the hook adds its own name attribute.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meters = mp
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.traces = tp
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		policy: LatestWins,
		logger: slog.Default(),
		meters: otel.GetMeterProvider(),
		traces: otel.GetTracerProvider(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
