package node

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type options struct {
	logger       *slog.Logger
	meter        metric.Meter
	tracer       trace.Tracer
	seedNodes    int
	onStoreError func(error)
	now          func() time.Time
}

// Option configures a Manager.
type Option func(*options)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter sets the meter for the persist counter. Default: the global
// meter provider.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

// WithTracer sets the tracer for persist spans. Default: the global tracer
// provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithSeedNodes sets how many nodes the manager keeps at minimum. Missing
// nodes are created with random identifiers.
func WithSeedNodes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.seedNodes = n
		}
	}
}

// WithOnStoreError registers a hook called with every persist failure.
func WithOnStoreError(fn func(error)) Option {
	return func(o *options) { o.onStoreError = fn }
}

// WithNow replaces the wall clock used for the persisted high-water mark.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
