package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/uuidkit/state"
	"github.com/zero-day-ai/uuidkit/uuid"
)

const instrumentationName = "github.com/zero-day-ai/uuidkit/node"

// DefaultSeedNodes is the number of random nodes created when the store has
// none.
const DefaultSeedNodes = 1

// Manager owns the node set and its persistence.
//
// The node set is loaded from the store on first use. While running, the
// manager persists at most once per store sync interval and writes each
// node's last timestamp as a high-water mark one sync interval ahead of the
// wall clock, so a process restarted from that state cannot reissue a
// timestamp even if its final persist never happened. Sync writes the exact
// values and is meant for shutdown.
//
// When the store is a state.Claimer, the manager only keeps nodes it could
// claim, at most the seed count of them, and seeds fresh nodes for the rest.
// Claims are renewed from SyncIfDue every third of the claim TTL; a node
// found claimed by another process is replaced before further use.
type Manager struct {
	store   state.Store
	claimer state.Claimer
	opts    options

	initOnce sync.Once

	mu          sync.Mutex
	nodes       []*Node
	current     int
	lastPersist uint64 // reference timestamp of the last persist attempt

	persistMu sync.Mutex

	claimMu   sync.Mutex
	lastClaim time.Time

	persists metric.Int64Counter
}

// NewManager returns a Manager persisting to store.
func NewManager(store state.Store, opts ...Option) *Manager {
	o := options{
		logger:    slog.Default(),
		seedNodes: DefaultSeedNodes,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meter == nil {
		o.meter = otel.Meter(instrumentationName)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}
	o.logger = o.logger.With("component", "node.manager")

	m := &Manager{store: store, opts: o}
	m.claimer, _ = store.(state.Claimer)

	var err error
	m.persists, err = o.meter.Int64Counter(
		"uuidkit.state.persists",
		metric.WithDescription("Number of node state persist attempts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		o.logger.Warn("failed to create persist counter", "error", err)
		m.persists = noop.Int64Counter{}
	}
	return m
}

func (m *Manager) init(ctx context.Context) {
	m.initOnce.Do(func() {
		records, err := m.store.Load(ctx)
		switch {
		case errors.Is(err, state.ErrStoreUnavailable):
			m.opts.logger.Info("no persisted node state, seeding new nodes", "error", err, "seed_nodes", m.opts.seedNodes)
			records = nil
		case err != nil:
			m.opts.logger.Warn("failed to load node state, seeding new nodes", "error", err, "seed_nodes", m.opts.seedNodes)
			records = nil
		}

		nodes := make([]*Node, 0, max(len(records), m.opts.seedNodes))
		seen := make(map[uuid.NodeID]bool, len(records))
		for _, r := range records {
			if seen[r.Node] {
				m.opts.logger.Warn("ignoring duplicate node in state", "node", r.Node.String())
				continue
			}
			seen[r.Node] = true
			if m.claimer != nil {
				if len(nodes) >= m.opts.seedNodes {
					break
				}
				if err := m.claimer.Claim(ctx, r.Node); err != nil {
					m.opts.logger.Info("skipping node held elsewhere", "node", r.Node.String(), "error", err)
					continue
				}
			}
			nodes = append(nodes, newNode(r))
		}
		for len(nodes) < m.opts.seedNodes {
			nodes = append(nodes, m.seed(ctx))
		}
		m.lastClaim = m.opts.now()

		m.mu.Lock()
		m.nodes = nodes
		m.mu.Unlock()

		m.opts.logger.Debug("node set ready", "nodes", len(nodes), "loaded", len(seen), "claimed", m.claimer != nil)
	})
}

// seed returns a node with a fresh random identity, claimed when the store
// supports claims. A fresh identity whose claim cannot be written is used
// anyway; it collides with nothing known.
func (m *Manager) seed(ctx context.Context) *Node {
	for {
		r, err := state.NewRecord()
		if err != nil {
			// crypto/rand only fails on broken platforms
			panic(fmt.Sprintf("failed to seed node: %v", err))
		}
		if m.claimer != nil {
			err := m.claimer.Claim(ctx, r.Node)
			if errors.Is(err, state.ErrClaimed) {
				continue
			}
			if err != nil {
				m.opts.logger.Warn("failed to claim seeded node", "node", r.Node.String(), "error", err)
			}
		}
		return newNode(r)
	}
}

// renewClaimsIfDue renews every node claim once a third of the claim TTL has
// passed since the last renewal and replaces the nodes another process took
// over.
func (m *Manager) renewClaimsIfDue(ctx context.Context) {
	if m.claimer == nil || !m.claimMu.TryLock() {
		return
	}
	defer m.claimMu.Unlock()

	now := m.opts.now()
	if now.Sub(m.lastClaim) < m.claimer.ClaimTTL()/3 {
		return
	}
	m.lastClaim = now

	m.mu.Lock()
	nodes := slices.Clone(m.nodes)
	m.mu.Unlock()

	replacements := make(map[*Node]*Node)
	for _, n := range nodes {
		err := m.claimer.Claim(ctx, n.ID())
		switch {
		case err == nil:
		case errors.Is(err, state.ErrClaimed):
			replacement := m.seed(ctx)
			m.opts.logger.Warn("node claimed by another process, replacing it",
				"node", n.String(), "replacement", replacement.String())
			replacements[n] = replacement
		default:
			m.opts.logger.Warn("failed to renew node claim", "node", n.String(), "error", err)
		}
	}
	if len(replacements) == 0 {
		return
	}

	m.mu.Lock()
	for i, n := range m.nodes {
		if r, ok := replacements[n]; ok {
			m.nodes[i] = r
		}
	}
	m.mu.Unlock()
}

// Close gives up the node claims so that other processes can take the nodes
// over without waiting for the claims to expire. Call it after the final
// Sync. It does nothing for stores without claims.
func (m *Manager) Close(ctx context.Context) error {
	if m.claimer == nil {
		return nil
	}

	m.mu.Lock()
	ids := make([]uuid.NodeID, len(m.nodes))
	for i, n := range m.nodes {
		ids[i] = n.ID()
	}
	m.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	if err := m.claimer.Unclaim(ctx, ids); err != nil {
		return fmt.Errorf("failed to release node claims: %w", err)
	}
	return nil
}

// Current returns the node identifiers are currently issued from.
func (m *Manager) Current(ctx context.Context) *Node {
	m.init(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[m.current]
}

// NextAvailable advances to the next node, wrapping after the last one, and
// returns it.
func (m *Manager) NextAvailable(ctx context.Context) *Node {
	m.init(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = (m.current + 1) % len(m.nodes)
	return m.nodes[m.current]
}

// Len returns the number of nodes.
func (m *Manager) Len(ctx context.Context) int {
	m.init(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// Lock acquires exclusive use of n.
func (m *Manager) Lock(n *Node) { n.mu.Lock() }

// Release gives up exclusive use of n.
func (m *Manager) Release(n *Node) { n.mu.Unlock() }

// Records returns the exact state of every node.
func (m *Manager) Records(ctx context.Context) []state.Record {
	m.init(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]state.Record, len(m.nodes))
	for i, n := range m.nodes {
		out[i] = n.Record()
	}
	return out
}

// SyncIfDue renews node claims when due, then persists the node set when
// the newest issued timestamp is more than one sync interval past the last
// persist. It returns immediately when another persist is in flight. Store
// errors are logged, counted and passed to the OnStoreError hook before
// being returned; they never affect generation.
func (m *Manager) SyncIfDue(ctx context.Context) error {
	m.init(ctx)
	m.renewClaimsIfDue(ctx)

	interval := m.store.SyncInterval()
	if interval < 0 {
		return nil
	}
	span := uint64(interval.Milliseconds()) * uuid.TicksPerMilli

	m.mu.Lock()
	newest := m.newestLocked()
	if newest <= m.lastPersist+span {
		m.mu.Unlock()
		return nil
	}
	if !m.persistMu.TryLock() {
		m.mu.Unlock()
		return nil
	}
	defer m.persistMu.Unlock()

	ref := max(newest, m.nowTicks())
	records := make([]state.Record, len(m.nodes))
	for i, n := range m.nodes {
		r := n.Record()
		r.LastTimestamp = min(max(r.LastTimestamp, ref)+span, uuid.MaxTimestamp)
		records[i] = r
	}
	m.lastPersist = ref
	m.mu.Unlock()

	return m.persist(ctx, records, "interval")
}

// Sync persists the exact node state unconditionally, waiting for any
// persist in flight.
func (m *Manager) Sync(ctx context.Context) error {
	m.init(ctx)

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	records := make([]state.Record, len(m.nodes))
	for i, n := range m.nodes {
		records[i] = n.Record()
	}
	m.mu.Unlock()

	return m.persist(ctx, records, "final")
}

func (m *Manager) newestLocked() uint64 {
	var newest uint64
	for _, n := range m.nodes {
		if ts := n.LastTimestamp(); ts > newest {
			newest = ts
		}
	}
	return newest
}

func (m *Manager) nowTicks() uint64 {
	ms := m.opts.now().UnixMilli()
	return uint64(ms+uuid.EpochOffsetMillis) * uuid.TicksPerMilli
}

func (m *Manager) persist(ctx context.Context, records []state.Record, reason string) error {
	ctx, span := m.opts.tracer.Start(ctx, "uuidkit.state.persist",
		trace.WithAttributes(
			attribute.Int("uuidkit.nodes", len(records)),
			attribute.String("uuidkit.persist.reason", reason),
		),
	)
	defer span.End()

	start := time.Now()
	err := m.store.Store(ctx, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		m.persists.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		m.opts.logger.Warn("failed to persist node state", "error", err, "nodes", len(records), "reason", reason)
		if m.opts.onStoreError != nil {
			m.opts.onStoreError(err)
		}
		return fmt.Errorf("failed to persist node state: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	m.persists.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
	m.opts.logger.Debug("persisted node state", "nodes", len(records), "reason", reason, "duration", time.Since(start))
	return nil
}
