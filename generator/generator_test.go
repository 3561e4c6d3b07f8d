package generator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/zero-day-ai/uuidkit/clock"
	"github.com/zero-day-ai/uuidkit/node"
	"github.com/zero-day-ai/uuidkit/state"
	"github.com/zero-day-ai/uuidkit/uuid"
)

// stubClock returns the error from fail while it is non-nil and delegates
// otherwise.
type stubClock struct {
	next  clock.Clock
	calls atomic.Int64
	fail  func(call int64) error
}

func (c *stubClock) Tick() (uint64, error) {
	call := c.calls.Add(1)
	if c.fail != nil {
		if err := c.fail(call); err != nil {
			return 0, err
		}
	}
	return c.next.Tick()
}

func newManager(seedNodes int) *node.Manager {
	return node.NewManager(state.NewMemory(),
		node.WithSeedNodes(seedNodes),
		node.WithMeter(noop.NewMeterProvider().Meter("test")),
	)
}

func newGenerator(m *node.Manager, clk clock.Clock, opts ...Option) *VersionOne {
	opts = append([]Option{WithMeter(noop.NewMeterProvider().Meter("test"))}, opts...)
	return New(m, clk, opts...)
}

func TestNext(t *testing.T) {
	ctx := context.Background()
	m := newManager(1)
	g := newGenerator(m, clock.NewSystem())

	before := time.Now().Add(-time.Millisecond)
	u, err := g.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, uuid.VersionTimeBased, u.Version())
	assert.Equal(t, uuid.VariantRFC4122, u.Variant())

	n, err := u.Node()
	require.NoError(t, err)
	assert.Equal(t, m.Current(ctx).ID(), n)

	seq, err := u.ClockSequence()
	require.NoError(t, err)
	assert.Equal(t, m.Current(ctx).ClockSequence(), seq)

	ts, err := u.Time()
	require.NoError(t, err)
	assert.False(t, ts.Before(before))
	assert.WithinDuration(t, time.Now(), ts, time.Second)
}

func TestNextTickBudgetThenRotation(t *testing.T) {
	ctx := context.Background()
	var ms atomic.Int64
	ms.Store(1_700_000_000_000)
	clk := clock.NewSystem(clock.WithNow(func() time.Time { return time.UnixMilli(ms.Load()) }))

	m := newManager(2)
	g := newGenerator(m, clk, WithMaxAttempts(4), WithBackoff(0))
	first := m.Current(ctx)

	seen := make(map[uuid.UUID]bool, clock.TicksPerMilli)
	var prev uint64
	for i := 0; i < clock.TicksPerMilli; i++ {
		u, err := g.Next(ctx)
		require.NoError(t, err, "call %d", i)
		require.False(t, seen[u])
		seen[u] = true

		n, _ := u.Node()
		require.Equal(t, first.ID(), n)
		ts, _ := u.Timestamp()
		if i > 0 {
			require.Greater(t, ts, prev)
		}
		prev = ts
	}

	// budget spent and the millisecond never moves: rotate, then give up
	_, err := g.Next(ctx)
	require.ErrorIs(t, err, ErrGenerationExhausted)
	require.ErrorIs(t, err, clock.ErrOverrun)

	ms.Add(1)
	u, err := g.Next(ctx)
	require.NoError(t, err)
	assert.False(t, seen[u])
	ts, _ := u.Timestamp()
	assert.Greater(t, ts, prev)
}

func TestNextRotatesOnOverrun(t *testing.T) {
	ctx := context.Background()
	m := newManager(3)
	first := m.Current(ctx)

	clk := &stubClock{
		next: clock.NewSystem(),
		fail: func(call int64) error {
			if call == 1 {
				return clock.ErrOverrun
			}
			return nil
		},
	}
	g := newGenerator(m, clk)

	u, err := g.Next(ctx)
	require.NoError(t, err)
	n, _ := u.Node()
	assert.NotEqual(t, first.ID(), n)
	assert.Equal(t, m.Current(ctx).ID(), n)
	assert.Equal(t, int64(2), clk.calls.Load())
}

func TestNextExhausted(t *testing.T) {
	ctx := context.Background()
	clk := &stubClock{
		next: clock.NewSystem(),
		fail: func(int64) error { return clock.ErrOverrun },
	}
	g := newGenerator(newManager(2), clk, WithMaxAttempts(5), WithBackoff(time.Microsecond))

	u, err := g.Next(ctx)
	require.ErrorIs(t, err, ErrGenerationExhausted)
	require.ErrorIs(t, err, clock.ErrOverrun)
	assert.Equal(t, uuid.Nil, u)
	assert.Equal(t, int64(5), clk.calls.Load())
}

func TestNextHonoursContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	clk := &stubClock{
		next: clock.NewSystem(),
		fail: func(int64) error { return clock.ErrOverrun },
	}
	g := newGenerator(newManager(1), clk, WithBackoff(time.Hour))

	start := time.Now()
	_, err := g.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), clk.calls.Load())
}

func TestNextSurfacesClockErrors(t *testing.T) {
	ticker := clock.NewTicker()
	require.NoError(t, ticker.Close())

	g := newGenerator(newManager(1), ticker)
	_, err := g.Next(context.Background())
	require.ErrorIs(t, err, clock.ErrClosed)
	assert.NotErrorIs(t, err, ErrGenerationExhausted)
}

func TestNextConcurrentUniqueness(t *testing.T) {
	ctx := context.Background()
	m := newManager(4)
	g := newGenerator(m, clock.NewSystem())

	const workers, perWorker = 8, 2500
	results := make(chan uuid.UUID, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				u, err := g.Next(ctx)
				if !assert.NoError(t, err) {
					return
				}
				results <- u
			}
		}()
	}
	wg.Wait()
	close(results)

	type key struct {
		node uuid.NodeID
		ts   uint64
		seq  uint16
	}
	seen := make(map[key]bool, workers*perWorker)
	for u := range results {
		n, _ := u.Node()
		ts, _ := u.Timestamp()
		seq, _ := u.ClockSequence()
		k := key{n, ts, seq}
		require.False(t, seen[k], "duplicate %s", u)
		seen[k] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestNextWithTickerClock(t *testing.T) {
	ctx := context.Background()
	ticker := clock.NewTicker(clock.WithIdleTimeout(50 * time.Millisecond))
	defer ticker.Close()

	g := newGenerator(newManager(2), ticker)
	seen := map[uuid.UUID]bool{}
	for i := 0; i < 5000; i++ {
		u, err := g.Next(ctx)
		require.NoError(t, err)
		require.False(t, seen[u])
		seen[u] = true
	}
}

func TestMust(t *testing.T) {
	clk := &stubClock{next: clock.NewSystem(), fail: func(int64) error { return clock.ErrOverrun }}
	g := newGenerator(newManager(1), clk, WithMaxAttempts(1))
	assert.Panics(t, func() { g.Must(context.Background()) })
}
