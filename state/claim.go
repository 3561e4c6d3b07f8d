package state

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zero-day-ai/uuidkit/uuid"
)

// DefaultClaimTTL is how long a node claim lives without renewal when a
// store is created without an explicit TTL.
const DefaultClaimTTL = 30 * time.Second

// ErrClaimed is returned by Claim when another owner holds the node.
var ErrClaimed = errors.New("state: node claimed by another owner")

// Claimer is implemented by stores that several processes may share. A
// process issues identifiers under a node only while it holds the node's
// claim, so two processes never share a node identity. Claims expire after
// ClaimTTL unless renewed, which frees the nodes of a crashed process.
type Claimer interface {
	// Claim takes the claim on node, or renews it when this store already
	// holds it. It returns an error wrapping ErrClaimed when another owner
	// holds it.
	Claim(ctx context.Context, node uuid.NodeID) error

	// Unclaim gives up the claims this store holds on nodes.
	Unclaim(ctx context.Context, nodes []uuid.NodeID) error

	// ClaimTTL is the lifetime of a claim that is not renewed.
	ClaimTTL() time.Duration
}

func claimTTLOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultClaimTTL
	}
	return d
}

// newOwner returns an identity unique to one store instance, e.g.
// "build-07/4121/9f86d081".
func newOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return fmt.Sprintf("%s/%d/%s", host, os.Getpid(), hex.EncodeToString(b[:]))
}

// mergeRecords returns ours plus the records of other nodes found in
// existing. When both hold a node, the record with the later timestamp wins.
func mergeRecords(existing, ours []Record) []Record {
	merged := make([]Record, 0, len(existing)+len(ours))
	index := make(map[uuid.NodeID]int, len(ours))
	for _, r := range ours {
		index[r.Node] = len(merged)
		merged = append(merged, r)
	}
	for _, r := range existing {
		i, ok := index[r.Node]
		if !ok {
			index[r.Node] = len(merged)
			merged = append(merged, r)
			continue
		}
		if r.LastTimestamp > merged[i].LastTimestamp {
			merged[i] = r
		}
	}
	return merged
}
