package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zero-day-ai/uuidkit/uuid"
)

type fakeEntry struct {
	value  string
	create int64
	mod    int64
}

// fakeKV implements the Get, Put and Txn parts of clientv3.KV and the lease
// calls the store makes, in memory.
type fakeKV struct {
	clientv3.KV
	clientv3.Lease

	mu           sync.Mutex
	data         map[string]fakeEntry
	rev          int64
	getErr       error
	putErr       error
	keepAliveErr error
	gets         int
	grants       int
	revoked      []clientv3.LeaseID

	// beforeCommit runs once, before the next transaction is evaluated.
	beforeCommit func()
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]fakeEntry)}
}

func (f *fakeKV) value(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key].value
}

func (f *fakeKV) drop(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
}

func (f *fakeKV) putLocked(key, val string) {
	f.rev++
	e, ok := f.data[key]
	if !ok {
		e.create = f.rev
	}
	e.mod = f.rev
	e.value = val
	f.data[key] = e
}

func (f *fakeKV) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	e, ok := f.data[key]
	if !ok {
		return &clientv3.GetResponse{}, nil
	}
	return &clientv3.GetResponse{
		Kvs: []*mvccpb.KeyValue{{
			Key:            []byte(key),
			Value:          []byte(e.value),
			CreateRevision: e.create,
			ModRevision:    e.mod,
		}},
		Count: 1,
	}, nil
}

func (f *fakeKV) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.putLocked(key, val)
	return &clientv3.PutResponse{}, nil
}

func (f *fakeKV) Txn(context.Context) clientv3.Txn { return &fakeTxn{kv: f} }

func (f *fakeKV) Grant(_ context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants++
	return &clientv3.LeaseGrantResponse{ID: clientv3.LeaseID(f.grants), TTL: ttl}, nil
}

func (f *fakeKV) KeepAliveOnce(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keepAliveErr != nil {
		return nil, f.keepAliveErr
	}
	return &clientv3.LeaseKeepAliveResponse{ID: id}, nil
}

func (f *fakeKV) Revoke(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, id)
	return &clientv3.LeaseRevokeResponse{}, nil
}

// fakeTxn supports equality comparisons on create revision, mod revision
// and value, with put and delete operations.
type fakeTxn struct {
	kv        *fakeKV
	cmps      []clientv3.Cmp
	then, els []clientv3.Op
}

func (t *fakeTxn) If(cs ...clientv3.Cmp) clientv3.Txn {
	t.cmps = append(t.cmps, cs...)
	return t
}

func (t *fakeTxn) Then(ops ...clientv3.Op) clientv3.Txn {
	t.then = append(t.then, ops...)
	return t
}

func (t *fakeTxn) Else(ops ...clientv3.Op) clientv3.Txn {
	t.els = append(t.els, ops...)
	return t
}

func (t *fakeTxn) Commit() (*clientv3.TxnResponse, error) {
	f := t.kv
	f.mu.Lock()
	if hook := f.beforeCommit; hook != nil {
		f.beforeCommit = nil
		f.mu.Unlock()
		hook()
		f.mu.Lock()
	}
	defer f.mu.Unlock()

	if f.putErr != nil {
		return nil, f.putErr
	}

	ok := true
	for _, c := range t.cmps {
		e, exists := f.data[string(c.KeyBytes())]
		switch u := c.TargetUnion.(type) {
		case *etcdserverpb.Compare_CreateRevision:
			ok = ok && e.create == u.CreateRevision
		case *etcdserverpb.Compare_ModRevision:
			ok = ok && e.mod == u.ModRevision
		case *etcdserverpb.Compare_Value:
			ok = ok && exists && e.value == string(u.Value)
		default:
			ok = false
		}
	}

	ops := t.then
	if !ok {
		ops = t.els
	}
	for _, op := range ops {
		switch {
		case op.IsPut():
			f.putLocked(string(op.KeyBytes()), string(op.ValueBytes()))
		case op.IsDelete():
			delete(f.data, string(op.KeyBytes()))
		}
	}
	return &clientv3.TxnResponse{Succeeded: ok}, nil
}

func TestEtcdStore(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		store := NewEtcdFromKV(newFakeKV(), "", 0)
		assert.Equal(t, DefaultEtcdKey, store.Key())
		assert.Equal(t, DefaultSyncInterval, store.SyncInterval())
		assert.NoError(t, store.Close())
	})

	t.Run("missing key is unavailable", func(t *testing.T) {
		store := NewEtcdFromKV(newFakeKV(), "/test/state", time.Second)
		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("round trip", func(t *testing.T) {
		kv := newFakeKV()
		store := NewEtcdFromKV(kv, "/test/state", time.Second)

		require.NoError(t, store.Store(ctx, testRecords(t)))
		assert.Contains(t, kv.value("/test/state"), "sync_interval_ms: 1000")

		got, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, testRecords(t), got)
	})

	t.Run("read failure", func(t *testing.T) {
		kv := newFakeKV()
		kv.getErr = errors.New("connection refused")
		store := NewEtcdFromKV(kv, "/test/state", time.Second)

		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.Error(t, store.Ping(ctx))
	})

	t.Run("write failures are classified", func(t *testing.T) {
		kv := newFakeKV()
		store := NewEtcdFromKV(kv, "/test/state", time.Second)

		kv.putErr = status.Error(codes.Unavailable, "no leader")
		assert.ErrorIs(t, store.Store(ctx, testRecords(t)), ErrStoreUnavailable)

		kv.putErr = context.DeadlineExceeded
		assert.ErrorIs(t, store.Store(ctx, testRecords(t)), ErrStoreUnavailable)

		kv.putErr = status.Error(codes.PermissionDenied, "denied")
		err := store.Store(ctx, testRecords(t))
		assert.ErrorIs(t, err, ErrStore)
		assert.NotErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("ping", func(t *testing.T) {
		kv := newFakeKV()
		store := NewEtcdFromKV(kv, "/test/state", time.Second)
		require.NoError(t, store.Ping(ctx))
		assert.Equal(t, 1, kv.gets)
	})
}

func TestEtcdSharedKey(t *testing.T) {
	ctx := context.Background()
	records := testRecords(t)

	t.Run("writers keep each other's records", func(t *testing.T) {
		kv := newFakeKV()
		a := NewEtcdFromKV(kv, "/test/state", time.Second)
		b := NewEtcdFromKV(kv, "/test/state", time.Second)

		require.NoError(t, a.Store(ctx, records[:1]))
		require.NoError(t, b.Store(ctx, records[1:]))

		got, err := a.Load(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, records, got)
	})

	t.Run("write racing another writer is retried", func(t *testing.T) {
		kv := newFakeKV()
		a := NewEtcdFromKV(kv, "/test/state", time.Second)
		b := NewEtcdFromKV(kv, "/test/state", time.Second)
		kv.beforeCommit = func() { require.NoError(t, b.Store(ctx, records[1:])) }

		require.NoError(t, a.Store(ctx, records[:1]))

		got, err := a.Load(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, records, got)
	})

	t.Run("later timestamp wins for a shared node", func(t *testing.T) {
		kv := newFakeKV()
		a := NewEtcdFromKV(kv, "/test/state", time.Second)
		newer := records[0]
		older := newer
		older.LastTimestamp -= 10

		require.NoError(t, a.Store(ctx, []Record{newer}))
		require.NoError(t, a.Store(ctx, []Record{older}))

		got, err := a.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []Record{newer}, got)
	})
}

func TestEtcdClaims(t *testing.T) {
	ctx := context.Background()
	node := testRecords(t)[0].Node

	t.Run("one owner at a time", func(t *testing.T) {
		kv := newFakeKV()
		a := NewEtcdFromKV(kv, "/test/state", time.Second)
		b := NewEtcdFromKV(kv, "/test/state", time.Second)
		assert.Equal(t, DefaultClaimTTL, a.ClaimTTL())

		require.NoError(t, a.Claim(ctx, node))
		require.NoError(t, a.Claim(ctx, node), "renewing an owned claim")
		assert.Equal(t, 1, kv.grants)
		assert.ErrorIs(t, b.Claim(ctx, node), ErrClaimed)

		require.NoError(t, a.Unclaim(ctx, []uuid.NodeID{node}))
		require.NoError(t, b.Claim(ctx, node))
		require.NoError(t, a.Unclaim(ctx, []uuid.NodeID{node}), "unclaiming a node held by another owner")
		assert.ErrorIs(t, a.Claim(ctx, node), ErrClaimed)
	})

	t.Run("expired claim is free", func(t *testing.T) {
		kv := newFakeKV()
		a := NewEtcdFromKV(kv, "/test/state", time.Second)
		b := NewEtcdFromKV(kv, "/test/state", time.Second)

		require.NoError(t, a.Claim(ctx, node))
		kv.drop("/test/state/claims/" + node.String())
		require.NoError(t, b.Claim(ctx, node))
	})

	t.Run("lost lease is granted again", func(t *testing.T) {
		kv := newFakeKV()
		a := NewEtcdFromKV(kv, "/test/state", time.Second)

		require.NoError(t, a.Claim(ctx, node))
		kv.keepAliveErr = status.Error(codes.NotFound, "requested lease not found")
		require.NoError(t, a.Claim(ctx, node))
		assert.Equal(t, 2, kv.grants)
	})

	t.Run("unreachable lease renewal", func(t *testing.T) {
		kv := newFakeKV()
		a := NewEtcdFromKV(kv, "/test/state", time.Second)

		require.NoError(t, a.Claim(ctx, node))
		kv.keepAliveErr = status.Error(codes.Unavailable, "no leader")
		assert.ErrorIs(t, a.Claim(ctx, node), ErrStoreUnavailable)
	})

	t.Run("close revokes the lease", func(t *testing.T) {
		kv := newFakeKV()
		a := NewEtcdFromKV(kv, "/test/state", time.Second)

		require.NoError(t, a.Claim(ctx, node))
		require.NoError(t, a.Close())
		assert.Equal(t, []clientv3.LeaseID{1}, kv.revoked)
	})

	t.Run("kv without leases", func(t *testing.T) {
		a := NewEtcdFromKV(struct{ clientv3.KV }{newFakeKV()}, "/test/state", time.Second)
		assert.ErrorIs(t, a.Claim(ctx, node), ErrStoreUnavailable)
	})
}

func TestNewEtcdRequiresEndpoints(t *testing.T) {
	_, err := NewEtcd(EtcdOptions{})
	assert.Error(t, err)
}
