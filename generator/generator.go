// Package generator issues version 1 UUIDs from a node manager and a clock.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/zero-day-ai/uuidkit/clock"
	"github.com/zero-day-ai/uuidkit/node"
	"github.com/zero-day-ai/uuidkit/uuid"
)

const instrumentationName = "github.com/zero-day-ai/uuidkit/generator"

const (
	// DefaultMaxAttempts bounds the clock reads of one Next call.
	DefaultMaxAttempts = 100

	// DefaultBackoff is the pause after every full rotation over the nodes.
	DefaultBackoff = 100 * time.Microsecond
)

// ErrGenerationExhausted is returned when every attempt of a Next call hit a
// clock overrun.
var ErrGenerationExhausted = errors.New("generator: attempts exhausted")

// VersionOne issues time-based UUIDs.
//
// Every Next call reads one tick from the clock under the lock of the current
// node. When the clock overruns, the generator moves on to the next node and
// tries again, pausing for the backoff after each full rotation so the clock
// can reach the next millisecond. All nodes share the clock, so rotation
// spreads identifiers over node identities but does not raise the tick rate
// of the process.
type VersionOne struct {
	manager *node.Manager
	clock   clock.Clock
	opts    options

	generated metric.Int64Counter
	overruns  metric.Int64Counter
	exhausted metric.Int64Counter
}

// New returns a generator drawing nodes from manager and ticks from clk.
func New(manager *node.Manager, clk clock.Clock, opts ...Option) *VersionOne {
	o := options{
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meter == nil {
		o.meter = otel.Meter(instrumentationName)
	}
	o.logger = o.logger.With("component", "generator")

	g := &VersionOne{manager: manager, clock: clk, opts: o}
	g.generated = g.counter("uuidkit.v1.generated", "Number of version 1 UUIDs issued")
	g.overruns = g.counter("uuidkit.v1.overruns", "Number of clock overruns hit while issuing version 1 UUIDs")
	g.exhausted = g.counter("uuidkit.v1.exhausted", "Number of Next calls that ran out of attempts")
	return g
}

func (g *VersionOne) counter(name, description string) metric.Int64Counter {
	c, err := g.opts.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit("1"))
	if err != nil {
		g.opts.logger.Warn("failed to create counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}

// Next returns a new version 1 UUID.
//
// Timestamps issued under one node strictly increase. Next fails with an
// error wrapping ErrGenerationExhausted and clock.ErrOverrun when MaxAttempts
// clock reads all overran, and with the context error when ctx ends during a
// backoff.
func (g *VersionOne) Next(ctx context.Context) (uuid.UUID, error) {
	// persistence failures are reported by the manager itself
	_ = g.manager.SyncIfDue(ctx)

	n := g.manager.Current(ctx)
	nodes := g.manager.Len(ctx)

	for attempt := 1; attempt <= g.opts.maxAttempts; attempt++ {
		g.manager.Lock(n)
		tick, err := g.clock.Tick()
		if err == nil {
			ts, seq := n.Advance(tick)
			g.manager.Release(n)
			g.generated.Add(ctx, 1)
			return uuid.NewTime(ts, seq, n.ID()), nil
		}
		g.manager.Release(n)

		if !errors.Is(err, clock.ErrOverrun) {
			return uuid.Nil, fmt.Errorf("failed to read clock: %w", err)
		}
		g.overruns.Add(ctx, 1)

		n = g.manager.NextAvailable(ctx)
		if attempt%nodes == 0 && attempt < g.opts.maxAttempts {
			if err := g.sleep(ctx); err != nil {
				return uuid.Nil, err
			}
		}
	}

	g.exhausted.Add(ctx, 1)
	g.opts.logger.Warn("version 1 generation exhausted", "attempts", g.opts.maxAttempts, "nodes", nodes)
	return uuid.Nil, fmt.Errorf("%w after %d attempts: %w", ErrGenerationExhausted, g.opts.maxAttempts, clock.ErrOverrun)
}

// Must is Next that panics on error.
func (g *VersionOne) Must(ctx context.Context) uuid.UUID {
	u, err := g.Next(ctx)
	if err != nil {
		panic(err)
	}
	return u
}

func (g *VersionOne) sleep(ctx context.Context) error {
	if g.opts.backoff <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.opts.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
