package clock

import (
	"sync"
	"time"
)

// System reads the wall clock on every call.
//
// Within one millisecond it returns consecutive ticks starting at the first
// tick of that millisecond. The 10,001st call in the same millisecond fails
// with ErrOverrun. A reading earlier than the last one is treated as the last
// one, so a wall clock step backwards cannot make a System repeat a tick.
type System struct {
	mu      sync.Mutex
	now     func() time.Time
	last    int64
	counter uint64
	started bool
}

var _ Clock = (*System)(nil)

// NewSystem returns a System clock.
func NewSystem(opts ...Option) *System {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &System{now: o.now}
}

// Tick returns the next tick or ErrOverrun.
func (c *System) Tick() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.now().UnixMilli()
	if !c.started || ms > c.last {
		c.started = true
		c.last = ms
		c.counter = 0
		return millisToTicks(ms), nil
	}

	if c.counter+1 >= TicksPerMilli {
		return 0, ErrOverrun
	}
	c.counter++
	return millisToTicks(c.last) + c.counter, nil
}
