package clock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNow is a settable wall clock.
type fakeNow struct {
	ms atomic.Int64
}

func newFakeNow(ms int64) *fakeNow {
	f := &fakeNow{}
	f.ms.Store(ms)
	return f
}

func (f *fakeNow) Now() time.Time { return time.UnixMilli(f.ms.Load()) }
func (f *fakeNow) Set(ms int64)   { f.ms.Store(ms) }

const baseMillis = 1_700_000_000_000

func TestSystemTick(t *testing.T) {
	t.Run("first tick is start of millisecond", func(t *testing.T) {
		now := newFakeNow(baseMillis)
		c := NewSystem(WithNow(now.Now))

		tick, err := c.Tick()
		require.NoError(t, err)
		assert.Equal(t, uint64(baseMillis+EpochOffsetMillis)*TicksPerMilli, tick)
	})

	t.Run("ten thousand ticks then overrun", func(t *testing.T) {
		now := newFakeNow(baseMillis)
		c := NewSystem(WithNow(now.Now))

		var prev uint64
		for i := 0; i < TicksPerMilli; i++ {
			tick, err := c.Tick()
			require.NoError(t, err, "call %d", i)
			if i > 0 {
				require.Equal(t, prev+1, tick)
			}
			prev = tick
		}

		_, err := c.Tick()
		assert.ErrorIs(t, err, ErrOverrun)
		_, err = c.Tick()
		assert.ErrorIs(t, err, ErrOverrun, "overrun persists until the millisecond moves")

		now.Set(baseMillis + 1)
		tick, err := c.Tick()
		require.NoError(t, err)
		assert.Equal(t, uint64(baseMillis+1+EpochOffsetMillis)*TicksPerMilli, tick)
		assert.Greater(t, tick, prev)
	})

	t.Run("backwards wall clock never repeats", func(t *testing.T) {
		now := newFakeNow(baseMillis)
		c := NewSystem(WithNow(now.Now))

		first, err := c.Tick()
		require.NoError(t, err)

		now.Set(baseMillis - 500)
		second, err := c.Tick()
		require.NoError(t, err)
		assert.Equal(t, first+1, second)
	})

	t.Run("concurrent callers get distinct ticks", func(t *testing.T) {
		c := NewSystem()
		const workers, perWorker = 8, 500

		var mu sync.Mutex
		seen := make(map[uint64]struct{}, workers*perWorker)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					tick, err := c.Tick()
					if err != nil {
						continue
					}
					mu.Lock()
					_, dup := seen[tick]
					seen[tick] = struct{}{}
					mu.Unlock()
					assert.False(t, dup, "duplicate tick %d", tick)
				}
			}()
		}
		wg.Wait()
	})
}

// manualTicks replaces the background ticker with a channel the test drives.
type manualTicks struct {
	ch      chan time.Time
	stopped atomic.Int32
}

func newManualTicks() *manualTicks {
	return &manualTicks{ch: make(chan time.Time)}
}

func (m *manualTicks) option() Option {
	return func(o *options) {
		o.tickSource = func(time.Duration) (<-chan time.Time, func()) {
			return m.ch, func() { m.stopped.Add(1) }
		}
	}
}

// fire delivers one tick; it blocks until the background goroutine receives
// it.
func (m *manualTicks) fire() {
	m.ch <- time.Time{}
}

func TestTickerBudget(t *testing.T) {
	now := newFakeNow(baseMillis)
	ticks := newManualTicks()
	c := NewTicker(WithNow(now.Now), WithInterval(time.Millisecond), ticks.option())
	defer c.Close()

	var prev uint64
	for i := 0; i < TicksPerMilli; i++ {
		tick, err := c.Tick()
		require.NoError(t, err)
		if i > 0 {
			require.Equal(t, prev+1, tick)
		}
		prev = tick
	}
	_, err := c.Tick()
	require.ErrorIs(t, err, ErrOverrun)

	// wall time does not matter until the background step runs
	now.Set(baseMillis + 5)
	_, err = c.Tick()
	require.ErrorIs(t, err, ErrOverrun)

	ticks.fire()
	var tick uint64
	require.Eventually(t, func() bool {
		tick, err = c.Tick()
		return err == nil
	}, time.Second, time.Millisecond)
	assert.Greater(t, tick, prev)
	assert.Equal(t, uint64(baseMillis+5+EpochOffsetMillis)*TicksPerMilli, tick)
}

func TestTickerBudgetScalesWithInterval(t *testing.T) {
	now := newFakeNow(baseMillis)
	ticks := newManualTicks()
	c := NewTicker(WithNow(now.Now), WithInterval(10*time.Millisecond), ticks.option())
	defer c.Close()

	assert.Equal(t, 10*time.Millisecond, c.Interval())
	for i := 0; i < 10*TicksPerMilli; i++ {
		_, err := c.Tick()
		require.NoError(t, err)
	}
	_, err := c.Tick()
	assert.ErrorIs(t, err, ErrOverrun)
}

func TestTickerIdleStopAndRestart(t *testing.T) {
	now := newFakeNow(baseMillis)
	ticks := newManualTicks()
	c := NewTicker(
		WithNow(now.Now),
		WithInterval(10*time.Millisecond),
		WithIdleTimeout(50*time.Millisecond),
		ticks.option(),
	)
	defer c.Close()

	first, err := c.Tick()
	require.NoError(t, err)
	require.True(t, c.Running())

	// idle long enough: the next step stops the task
	now.Set(baseMillis + 100)
	ticks.fire()
	require.Eventually(t, func() bool { return !c.Running() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return ticks.stopped.Load() == 1 }, time.Second, time.Millisecond)

	// wall clock went backwards while stopped; restart must not reuse ticks
	now.Set(baseMillis - 1000)
	second, err := c.Tick()
	require.NoError(t, err)
	assert.True(t, c.Running())
	assert.GreaterOrEqual(t, second, first+10*TicksPerMilli)
}

func TestTickerRestartResyncsForward(t *testing.T) {
	now := newFakeNow(baseMillis)
	ticks := newManualTicks()
	c := NewTicker(WithNow(now.Now), WithIdleTimeout(time.Millisecond), ticks.option())
	defer c.Close()

	_, err := c.Tick()
	require.NoError(t, err)

	now.Set(baseMillis + 60_000)
	ticks.fire()
	require.Eventually(t, func() bool { return !c.Running() }, time.Second, time.Millisecond)

	tick, err := c.Tick()
	require.NoError(t, err)
	assert.Equal(t, uint64(baseMillis+60_000+EpochOffsetMillis)*TicksPerMilli, tick)
}

func TestTickerClose(t *testing.T) {
	ticks := newManualTicks()
	c := NewTicker(ticks.option())

	_, err := c.Tick()
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.Running())
	assert.Equal(t, int32(1), ticks.stopped.Load())

	_, err = c.Tick()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTickerRealTime(t *testing.T) {
	c := NewTicker(WithIdleTimeout(20 * time.Millisecond))
	defer c.Close()

	var prev uint64
	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		tick, err := c.Tick()
		if err != nil {
			require.ErrorIs(t, err, ErrOverrun)
			continue
		}
		require.Greater(t, tick, prev)
		prev = tick
	}
	require.NotZero(t, prev)

	require.Eventually(t, func() bool { return !c.Running() }, time.Second, 5*time.Millisecond)
}

func TestWithInterval(t *testing.T) {
	o := defaultOptions()
	WithInterval(0)(&o)
	assert.Equal(t, time.Millisecond, o.interval)
	WithInterval(2500 * time.Microsecond)(&o)
	assert.Equal(t, 2*time.Millisecond, o.interval)
}
