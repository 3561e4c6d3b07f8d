// Package clock issues 60-bit version 1 timestamps.
//
// A tick counts 100 nanosecond intervals since 1582-10-15 00:00:00 UTC. The
// platform clock only resolves milliseconds, so each clock hands out up to
// TicksPerMilli sub-millisecond ticks per observed millisecond and then
// reports ErrOverrun until time moves on. Callers must never substitute a
// stale tick for an overrun.
package clock

import (
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/zero-day-ai/uuidkit/uuid"
)

const (
	// TicksPerMilli is the number of 100ns intervals in one millisecond.
	TicksPerMilli = uuid.TicksPerMilli

	// EpochOffsetMillis is the distance between the UUID epoch and the Unix
	// epoch in milliseconds.
	EpochOffsetMillis = uuid.EpochOffsetMillis

	// DefaultIdleTimeout is how long a Ticker keeps its background task alive
	// without a Tick call.
	DefaultIdleTimeout = 200 * time.Millisecond
)

var (
	// ErrOverrun is returned when the tick budget of the current millisecond
	// is spent.
	ErrOverrun = errors.New("clock: tick budget exhausted for current interval")

	// ErrClosed is returned by Tick after Close.
	ErrClosed = errors.New("clock: closed")
)

// Clock produces strictly increasing ticks.
type Clock interface {
	Tick() (uint64, error)
}

// DefaultInterval is the step of the background clock. Windows timers do not
// reliably resolve single milliseconds.
func DefaultInterval() time.Duration {
	if runtime.GOOS == "windows" {
		return 10 * time.Millisecond
	}
	return time.Millisecond
}

// millisToTicks converts Unix milliseconds to the first tick of that
// millisecond.
func millisToTicks(ms int64) uint64 {
	return uint64(ms+EpochOffsetMillis) * TicksPerMilli
}

type options struct {
	now         func() time.Time
	interval    time.Duration
	idleTimeout time.Duration
	logger      *slog.Logger
	tickSource  func(time.Duration) (<-chan time.Time, func())
}

func defaultOptions() options {
	return options{
		now:         time.Now,
		interval:    DefaultInterval(),
		idleTimeout: DefaultIdleTimeout,
		logger:      slog.Default(),
		tickSource: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Option configures a System or Ticker clock.
type Option func(*options)

// WithNow replaces the wall clock reading.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithInterval sets the step of a Ticker. It is truncated to whole
// milliseconds with a minimum of one. System ignores it.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d < time.Millisecond {
			d = time.Millisecond
		}
		o.interval = d.Truncate(time.Millisecond)
	}
}

// WithIdleTimeout sets how long a Ticker runs without callers before its
// background task stops. System ignores it.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

// WithLogger sets the logger used for background task lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
