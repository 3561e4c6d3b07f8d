package uuidkit

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/uuidkit/clock"
	"github.com/zero-day-ai/uuidkit/config"
	"github.com/zero-day-ai/uuidkit/state"
)

// Option configures a Kit.
type Option func(*kitConfig)

type kitConfig struct {
	config       *config.Config
	configPath   string
	applyEnv     bool
	logger       *slog.Logger
	meter        metric.Meter
	tracer       trace.Tracer
	store        state.Store
	clock        clock.Clock
	onStoreError func(error)
}

// WithConfig sets the configuration. It takes precedence over WithConfigFile.
func WithConfig(cfg *config.Config) Option {
	return func(c *kitConfig) {
		c.config = cfg
	}
}

// WithConfigFile loads the configuration from a uuidkit.yaml file or a
// directory containing one.
func WithConfigFile(path string) Option {
	return func(c *kitConfig) {
		c.configPath = path
	}
}

// WithEnv applies the UUIDKIT_* environment overrides to the configuration.
func WithEnv() Option {
	return func(c *kitConfig) {
		c.applyEnv = true
	}
}

// WithLogger sets a custom logger for the kit and its components.
// If not provided, one is built from the log section of the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(c *kitConfig) {
		c.logger = logger
	}
}

// WithMeter sets the OpenTelemetry meter for generation and persistence
// counters. Default: the global meter provider.
func WithMeter(meter metric.Meter) Option {
	return func(c *kitConfig) {
		c.meter = meter
	}
}

// WithTracer sets the OpenTelemetry tracer for persistence spans.
// Default: the global tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *kitConfig) {
		c.tracer = tracer
	}
}

// WithStore replaces the configured state backend, e.g. with a
// state.ReadOnly over an embed.FS.
func WithStore(store state.Store) Option {
	return func(c *kitConfig) {
		c.store = store
	}
}

// WithClock replaces the configured clock strategy.
func WithClock(clk clock.Clock) Option {
	return func(c *kitConfig) {
		c.clock = clk
	}
}

// WithOnStoreError registers a hook called with every persist failure.
func WithOnStoreError(fn func(error)) Option {
	return func(c *kitConfig) {
		c.onStoreError = fn
	}
}
