package client

import (
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpkit/client/transport"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error

type options struct {
	transport  transport.Transport
	logger     *slog.Logger
	tracer     trace.Tracer
	onComplete func(Event)
	guard      Guard
	noDefaults bool
	newID      IDGenerator
	now        func() time.Time
}

// WithTransport replaces the default [transport.HTTP] engine.
func WithTransport(t transport.Transport) Option {
	return func(o *options) error {
		if t == nil {
			return errors.New("transport must not be nil")
		}
		o.transport = t
		return nil
	}
}

// WithLogger injects a custom [slog.Logger].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithTracer starts one span per transfer on t. Trace context is injected
// into outgoing headers through the global propagator.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) error {
		if t == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = t
		return nil
	}
}

// WithEventHook registers fn to receive an [Event] after every completed
// transfer, single or batched.
func WithEventHook(fn func(Event)) Option {
	return func(o *options) error {
		o.onComplete = fn
		return nil
	}
}

// WithTestGuard replaces the default environment guard. A nil guard
// disables the check.
func WithTestGuard(g Guard) Option {
	return func(o *options) error {
		o.guard = g
		if g == nil {
			o.guard = func() bool { return false }
		}
		return nil
	}
}

// WithoutDefaults skips the built-in remembered option stack.
func WithoutDefaults() Option {
	return func(o *options) error {
		o.noDefaults = true
		return nil
	}
}

// WithRequestIDs sets the generator used for request IDs. Each ID is also
// recorded on the transfer's span.
func WithRequestIDs(gen IDGenerator) Option {
	return func(o *options) error {
		if gen == nil {
			return errors.New("id generator must not be nil")
		}
		o.newID = gen
		return nil
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		o.now = now
		return nil
	}
}
