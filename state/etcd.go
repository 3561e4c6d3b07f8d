package state

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zero-day-ai/uuidkit/uuid"
)

// DefaultEtcdKey is the key used when EtcdOptions.Key is empty.
const DefaultEtcdKey = "/uuidkit/state"

// EtcdOptions configures an Etcd store.
type EtcdOptions struct {
	// Endpoints is the list of etcd endpoints.
	// Format: ["host1:2379", "host2:2379"]
	Endpoints []string

	// Key holds the document.
	Key string

	// DialTimeout bounds connection establishment. Default: 5s
	DialTimeout time.Duration

	// TLS holds TLS configuration for secure etcd communication.
	TLS *TLSConfig

	// SyncInterval is the minimum time between persists.
	SyncInterval time.Duration

	// ClaimTTL is the lifetime of the lease node claims are attached to.
	// Default: 30s
	ClaimTTL time.Duration
}

// Etcd stores the document as the value of one key. Several processes may
// share the key: node claims live under "<key>/claims/<node>", attached to a
// lease of this store, and every write merges with the records of the other
// processes.
type Etcd struct {
	kv       clientv3.KV
	lease    clientv3.Lease
	client   *clientv3.Client
	key      string
	interval time.Duration
	owner    string
	claimTTL time.Duration

	mu      sync.Mutex
	leaseID clientv3.LeaseID
}

var (
	_ Store   = (*Etcd)(nil)
	_ Claimer = (*Etcd)(nil)
)

// NewEtcd connects to the etcd cluster and verifies connectivity with a read
// of the state key.
func NewEtcd(opts EtcdOptions) (*Etcd, error) {
	if len(opts.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}

	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	clientCfg := clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: dialTimeout,
		DialOptions: []grpc.DialOption{grpc.WithUserAgent("uuidkit")},
	}

	tlsConfig, err := opts.TLS.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	clientCfg.TLS = tlsConfig

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	store := NewEtcdFromKV(cli, opts.Key, opts.SyncInterval)
	store.client = cli
	store.claimTTL = claimTTLOrDefault(opts.ClaimTTL)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		cli.Close()
		return nil, err
	}

	return store, nil
}

const revokeTimeout = 2 * time.Second

// NewEtcdFromKV wraps an existing KV, usually a *clientv3.Client. An empty
// key selects DefaultEtcdKey and a zero interval DefaultSyncInterval. Node
// claims need kv to implement clientv3.Lease as well, which a
// *clientv3.Client does.
func NewEtcdFromKV(kv clientv3.KV, key string, interval time.Duration) *Etcd {
	if key == "" {
		key = DefaultEtcdKey
	}
	lease, _ := kv.(clientv3.Lease)
	return &Etcd{
		kv:       kv,
		lease:    lease,
		key:      key,
		interval: intervalOrDefault(interval),
		owner:    newOwner(),
		claimTTL: DefaultClaimTTL,
	}
}

// Key returns the key holding the document.
func (e *Etcd) Key() string { return e.key }

// Load reads the document. A missing key or an unreachable cluster wraps
// ErrStoreUnavailable.
func (e *Etcd) Load(ctx context.Context) ([]Record, error) {
	resp, err := e.kv.Get(ctx, e.key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read etcd key %s: %v", ErrStoreUnavailable, e.key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("%w: etcd key %s does not exist", ErrStoreUnavailable, e.key)
	}
	return decodeRecords(resp.Kvs[0].Value, "etcd key "+e.key)
}

// Store writes the document. Records of nodes other than the given ones are
// kept, so processes sharing the key do not erase each other's nodes.
func (e *Etcd) Store(ctx context.Context, records []Record) error {
	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		resp, err := e.kv.Get(ctx, e.key)
		if err != nil {
			return e.writeError(err)
		}

		merged := records
		var rev int64
		if len(resp.Kvs) > 0 {
			rev = resp.Kvs[0].ModRevision
			if doc, err := Decode(resp.Kvs[0].Value); err == nil {
				merged = mergeRecords(doc.Records, records)
			}
		}

		data, err := Encode(Document{SyncInterval: e.interval, Records: merged})
		if err != nil {
			return err
		}

		txn, err := e.kv.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(e.key), "=", rev)).
			Then(clientv3.OpPut(e.key, string(data))).
			Commit()
		if err != nil {
			return e.writeError(err)
		}
		if txn.Succeeded {
			return nil
		}
	}
	return fmt.Errorf("%w: etcd key %s kept changing during %d write attempts", ErrStore, e.key, maxMergeAttempts)
}

func (e *Etcd) writeError(err error) error {
	if unreachable(err) {
		return fmt.Errorf("%w: etcd unreachable writing %s: %v", ErrStoreUnavailable, e.key, err)
	}
	return fmt.Errorf("%w: failed to write etcd key %s: %v", ErrStore, e.key, err)
}

// Claim takes the claim on node under the lease of this store, or keeps it
// alive when this store already holds it.
func (e *Etcd) Claim(ctx context.Context, node uuid.NodeID) error {
	id, err := e.currentLease(ctx)
	if err != nil {
		return err
	}

	k := e.claimKey(node)
	resp, err := e.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(k), "=", 0)).
		Then(clientv3.OpPut(k, e.owner, clientv3.WithLease(id))).
		Commit()
	if err != nil {
		return fmt.Errorf("%w: failed to claim node %s: %v", ErrStoreUnavailable, node, err)
	}
	if resp.Succeeded {
		return nil
	}

	// held already: ours, possibly attached to a lease that was replaced
	resp, err = e.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(k), "=", e.owner)).
		Then(clientv3.OpPut(k, e.owner, clientv3.WithLease(id))).
		Commit()
	if err != nil {
		return fmt.Errorf("%w: failed to claim node %s: %v", ErrStoreUnavailable, node, err)
	}
	if !resp.Succeeded {
		return fmt.Errorf("%w: node %s", ErrClaimed, node)
	}
	return nil
}

// Unclaim deletes the claims this store holds on nodes.
func (e *Etcd) Unclaim(ctx context.Context, nodes []uuid.NodeID) error {
	var errs []error
	for _, node := range nodes {
		k := e.claimKey(node)
		_, err := e.kv.Txn(ctx).
			If(clientv3.Compare(clientv3.Value(k), "=", e.owner)).
			Then(clientv3.OpDelete(k)).
			Commit()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to unclaim node %s: %w", node, err))
		}
	}
	return errors.Join(errs...)
}

// ClaimTTL returns the lease lifetime.
func (e *Etcd) ClaimTTL() time.Duration { return e.claimTTL }

// currentLease keeps the store lease alive, granting a new one when there is
// none or the old one expired.
func (e *Etcd) currentLease(ctx context.Context) (clientv3.LeaseID, error) {
	if e.lease == nil {
		return 0, fmt.Errorf("%w: etcd node claims need a lease client", ErrStoreUnavailable)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.leaseID != 0 {
		_, err := e.lease.KeepAliveOnce(ctx, e.leaseID)
		if err == nil {
			return e.leaseID, nil
		}
		if unreachable(err) {
			return 0, fmt.Errorf("%w: failed to renew etcd lease: %v", ErrStoreUnavailable, err)
		}
		e.leaseID = 0
	}

	ttl := int64(math.Ceil(e.claimTTL.Seconds()))
	resp, err := e.lease.Grant(ctx, max(ttl, 1))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to grant etcd lease: %v", ErrStoreUnavailable, err)
	}
	e.leaseID = resp.ID
	return resp.ID, nil
}

func (e *Etcd) claimKey(node uuid.NodeID) string {
	return e.key + "/claims/" + node.String()
}

// SyncInterval returns the configured interval.
func (e *Etcd) SyncInterval() time.Duration { return e.interval }

// Ping reads the state key without fetching its value.
func (e *Etcd) Ping(ctx context.Context) error {
	if _, err := e.kv.Get(ctx, e.key, clientv3.WithCountOnly()); err != nil {
		return fmt.Errorf("etcd health check failed: %w", err)
	}
	return nil
}

// Close revokes the claim lease, which drops any claim still held, and
// releases the client when the store created it.
func (e *Etcd) Close() error {
	e.mu.Lock()
	id := e.leaseID
	e.leaseID = 0
	e.mu.Unlock()

	var errs []error
	if id != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), revokeTimeout)
		if _, err := e.lease.Revoke(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("failed to revoke etcd lease: %w", err))
		}
		cancel()
	}
	if e.client != nil {
		errs = append(errs, e.client.Close())
	}
	return errors.Join(errs...)
}

func unreachable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
