package generator

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
)

type options struct {
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
	meter       metric.Meter
}

// Option configures a VersionOne generator.
type Option func(*options)

// WithMaxAttempts bounds the clock reads of one Next call. Values below one
// are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBackoff sets the pause after each full rotation over the nodes. Zero
// disables it.
func WithBackoff(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.backoff = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter sets the meter for the generation counters.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}
