package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zero-day-ai/uuidkit/uuid"
)

// DefaultRedisKey is the key used when RedisOptions.Key is empty.
const DefaultRedisKey = "uuidkit:state"

// RedisOptions configures a Redis store.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// Key holds the document.
	Key string

	// TLS configuration for secure connections
	TLS *TLSConfig

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// SyncInterval is the minimum time between persists.
	SyncInterval time.Duration

	// ClaimTTL is the lifetime of an unrenewed node claim. Default: 30s
	ClaimTTL time.Duration
}

// Redis stores the document as a string value under one key. Several
// processes may share the key: node claims live under "<key>:claim:<node>"
// and every write merges with the records of the other processes.
type Redis struct {
	client   *redis.Client
	key      string
	interval time.Duration
	owner    string
	claimTTL time.Duration
}

var (
	_ Store   = (*Redis)(nil)
	_ Claimer = (*Redis)(nil)
)

// maxMergeAttempts bounds the optimistic read-merge-write retries of a
// shared document.
const maxMergeAttempts = 5

var claimScript = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if holder == false or holder == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

var unclaimScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	tlsConfig, err := opts.TLS.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	if tlsConfig != nil {
		redisOpts.TLSConfig = tlsConfig
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := NewRedisFromClient(client, opts.Key, opts.SyncInterval)
	store.claimTTL = claimTTLOrDefault(opts.ClaimTTL)
	return store, nil
}

// NewRedisFromClient wraps an existing client. An empty key selects
// DefaultRedisKey and a zero interval DefaultSyncInterval.
func NewRedisFromClient(client *redis.Client, key string, interval time.Duration) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{
		client:   client,
		key:      key,
		interval: intervalOrDefault(interval),
		owner:    newOwner(),
		claimTTL: DefaultClaimTTL,
	}
}

// Key returns the key holding the document.
func (r *Redis) Key() string { return r.key }

// Load reads the document. A missing key or a failed read wraps
// ErrStoreUnavailable.
func (r *Redis) Load(ctx context.Context) ([]Record, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: redis key %s does not exist", ErrStoreUnavailable, r.key)
		}
		return nil, fmt.Errorf("%w: failed to read redis key %s: %v", ErrStoreUnavailable, r.key, err)
	}
	return decodeRecords(data, "redis key "+r.key)
}

// Store writes the document without expiry. Records of nodes other than
// the given ones are kept, so processes sharing the key do not erase each
// other's nodes.
func (r *Redis) Store(ctx context.Context, records []Record) error {
	write := func(tx *redis.Tx) error {
		merged := records
		existing, err := tx.Get(ctx, r.key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if doc, err := Decode(existing); err == nil {
				merged = mergeRecords(doc.Records, records)
			}
		}

		data, err := Encode(Document{SyncInterval: r.interval, Records: merged})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err := r.client.Watch(ctx, write, r.key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrStore) {
			return err
		}
		return fmt.Errorf("%w: failed to write redis key %s: %v", ErrStore, r.key, err)
	}
	return fmt.Errorf("%w: redis key %s kept changing during %d write attempts", ErrStore, r.key, maxMergeAttempts)
}

// Claim takes or renews the claim on node for ClaimTTL.
func (r *Redis) Claim(ctx context.Context, node uuid.NodeID) error {
	ok, err := claimScript.Run(ctx, r.client, []string{r.claimKey(node)}, r.owner, r.claimTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%w: failed to claim node %s: %v", ErrStoreUnavailable, node, err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: node %s", ErrClaimed, node)
	}
	return nil
}

// Unclaim deletes the claims this store holds on nodes.
func (r *Redis) Unclaim(ctx context.Context, nodes []uuid.NodeID) error {
	var errs []error
	for _, node := range nodes {
		if err := unclaimScript.Run(ctx, r.client, []string{r.claimKey(node)}, r.owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
			errs = append(errs, fmt.Errorf("failed to unclaim node %s: %w", node, err))
		}
	}
	return errors.Join(errs...)
}

// ClaimTTL returns the lifetime of an unrenewed claim.
func (r *Redis) ClaimTTL() time.Duration { return r.claimTTL }

func (r *Redis) claimKey(node uuid.NodeID) string {
	return r.key + ":claim:" + node.String()
}

// SyncInterval returns the configured interval.
func (r *Redis) SyncInterval() time.Duration { return r.interval }

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
