// Package node tracks the clock state of version 1 node identities and
// coordinates its persistence.
//
// A Node is one 48-bit identity with its clock sequence and the last
// timestamp issued under it. The Manager owns the set of nodes, picks the
// node new identifiers are issued from, rotates to the next node when the
// clock overruns, and periodically writes the node set to a state.Store.
//
// Lock order is Manager before Node. Code holding a node lock must not call
// back into the Manager.
package node

import (
	"sync"
	"sync/atomic"

	"github.com/zero-day-ai/uuidkit/state"
	"github.com/zero-day-ai/uuidkit/uuid"
)

// Node is one version 1 node identity.
type Node struct {
	id uuid.NodeID

	mu        sync.Mutex
	regressed bool

	// written under mu, readable without it
	clockSeq atomic.Uint32
	last     atomic.Uint64
}

func newNode(r state.Record) *Node {
	n := &Node{id: r.Node}
	n.clockSeq.Store(uint32(r.ClockSequence & uuid.MaxClockSequence))
	n.last.Store(r.LastTimestamp)
	return n
}

// ID returns the node identifier.
func (n *Node) ID() uuid.NodeID { return n.id }

// ClockSequence returns the current clock sequence.
func (n *Node) ClockSequence() uint16 { return uint16(n.clockSeq.Load()) }

// LastTimestamp returns the last timestamp issued under this node.
func (n *Node) LastTimestamp() uint64 { return n.last.Load() }

// Advance records tick as issued and returns the timestamp and clock
// sequence to put in the identifier. The caller must hold the node lock.
//
// A tick above the last issued timestamp is used as is. Otherwise, after a
// restart from a persisted high-water mark or a wall clock reset, the
// timestamp is pinned to one past the last issued one and the clock sequence
// is incremented once for the whole regression. Timestamps under one node
// therefore strictly increase.
func (n *Node) Advance(tick uint64) (timestamp uint64, clockSeq uint16) {
	last := n.last.Load()
	if tick > last {
		n.regressed = false
		n.last.Store(tick)
		return tick, n.ClockSequence()
	}

	if !n.regressed {
		n.regressed = true
		n.clockSeq.Store((n.clockSeq.Load() + 1) & uuid.MaxClockSequence)
	}
	n.last.Store(last + 1)
	return last + 1, n.ClockSequence()
}

// Record returns the node state for persistence.
func (n *Node) Record() state.Record {
	return state.Record{
		Node:          n.id,
		ClockSequence: n.ClockSequence(),
		LastTimestamp: n.LastTimestamp(),
	}
}

func (n *Node) String() string { return n.id.String() }
