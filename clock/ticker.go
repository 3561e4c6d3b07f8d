package clock

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Ticker hands out ticks against a simulated millisecond that a background
// goroutine advances every interval.
//
// Each step of the simulated clock has a budget of TicksPerMilli ticks for
// every millisecond of the interval. The goroutine starts on the first Tick,
// stops by itself after IdleTimeout without callers, and is restarted by the
// next Tick. A restart resynchronises with the wall clock but never moves the
// simulated millisecond backwards.
type Ticker struct {
	opts   options
	logger *slog.Logger
	step   int64  // interval in milliseconds
	budget uint64 // ticks per step

	mu       sync.Mutex
	current  int64 // simulated Unix milliseconds
	issuedAt int64 // simulated millisecond of the last issued tick
	counter  uint64
	issued   bool
	lastUse  time.Time
	running  bool
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ Clock = (*Ticker)(nil)

// NewTicker returns a Ticker clock. The background task is not started until
// the first Tick.
func NewTicker(opts ...Option) *Ticker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	step := o.interval.Milliseconds()
	return &Ticker{
		opts:   o,
		step:   step,
		budget: uint64(step) * TicksPerMilli,
		logger: o.logger.With("component", "clock.ticker"),
	}
}

// Interval returns the step of the simulated clock.
func (c *Ticker) Interval() time.Duration {
	return time.Duration(c.step) * time.Millisecond
}

// Running reports whether the background task is active.
func (c *Ticker) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Tick returns the next tick, ErrOverrun when the budget of the current step
// is spent, or ErrClosed after Close.
func (c *Ticker) Tick() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	now := c.opts.now()
	c.lastUse = now
	if !c.running {
		c.startLocked(now)
	}

	if !c.issued || c.current != c.issuedAt {
		c.issued = true
		c.issuedAt = c.current
		c.counter = 0
		return millisToTicks(c.current), nil
	}

	if c.counter+1 >= c.budget {
		return 0, ErrOverrun
	}
	c.counter++
	return millisToTicks(c.issuedAt) + c.counter, nil
}

// Close stops the background task and waits for it to exit. Close is
// idempotent.
func (c *Ticker) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (c *Ticker) startLocked(now time.Time) {
	// ticks up to the end of the current step may already be issued
	next := now.UnixMilli()
	if c.issued && next < c.current+c.step {
		next = c.current + c.step
	}
	c.current = next

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	ticks, stop := c.opts.tickSource(c.Interval())
	go c.run(ctx, ticks, stop, c.done)
	c.logger.Debug("background clock started", "millis", c.current)
}

func (c *Ticker) run(ctx context.Context, ticks <-chan time.Time, stop func(), done chan struct{}) {
	defer close(done)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return
		case <-ticks:
			if !c.advance() {
				return
			}
		}
	}
}

// advance moves the simulated clock one step and reports whether the task
// should keep running.
func (c *Ticker) advance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.now()
	if now.Sub(c.lastUse) >= c.opts.idleTimeout {
		c.running = false
		c.cancel()
		c.logger.Debug("background clock idle, stopping", "millis", c.current)
		return false
	}

	c.current += c.step
	if wall := now.UnixMilli(); wall > c.current {
		c.current = wall
	}
	return true
}
