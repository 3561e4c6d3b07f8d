package uuidkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/zero-day-ai/uuidkit/clock"
	"github.com/zero-day-ai/uuidkit/config"
	"github.com/zero-day-ai/uuidkit/generator"
	"github.com/zero-day-ai/uuidkit/health"
	"github.com/zero-day-ai/uuidkit/node"
	"github.com/zero-day-ai/uuidkit/state"
	"github.com/zero-day-ai/uuidkit/uuid"
)

// Kit owns one store, one node manager, one clock and one version 1
// generator, wired from a configuration.
//
// Thread-safety: All methods are safe for concurrent use.
type Kit struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend string

	store   state.Store
	clock   clock.Clock
	manager *node.Manager
	v1      *generator.VersionOne
	used    atomic.Bool

	closeOnce sync.Once
	closeErr  error
	closers   []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New builds a Kit. Remote backends are connected before New returns.
func New(opts ...Option) (*Kit, error) {
	var kc kitConfig
	for _, opt := range opts {
		opt(&kc)
	}

	cfg := kc.config
	if cfg == nil && kc.configPath != "" {
		loaded, err := config.Load(kc.configPath)
		if err != nil {
			return nil, &Error{Op: "uuidkit.New", Kind: KindConfiguration, Err: err}
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if kc.applyEnv {
		cfg.ApplyEnv()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Op: "uuidkit.New", Kind: KindConfiguration, Err: fmt.Errorf("%w: %v", ErrInvalidConfig, err)}
	}

	logger := kc.logger
	if logger == nil {
		logger = NewLogger(cfg.Log, os.Stderr)
	}

	k := &Kit{cfg: cfg, logger: logger}

	if kc.store != nil {
		k.store = kc.store
		k.backend = "custom"
	} else {
		store, err := k.openStore()
		if err != nil {
			return nil, wrap("uuidkit.New", err)
		}
		k.store = store
		k.backend = cfg.State.GetBackend()
	}

	if kc.clock != nil {
		k.clock = kc.clock
	} else {
		k.clock = k.newClock()
	}
	if c, ok := k.clock.(io.Closer); ok {
		k.closers = append(k.closers, namedCloser{"clock", c})
	}

	managerOpts := []node.Option{
		node.WithLogger(logger),
		node.WithSeedNodes(cfg.State.GetSeedNodes()),
		node.WithOnStoreError(kc.onStoreError),
	}
	generatorOpts := []generator.Option{
		generator.WithLogger(logger),
		generator.WithMaxAttempts(cfg.Generator.GetMaxAttempts()),
		generator.WithBackoff(cfg.Generator.GetBackoff()),
	}
	if kc.meter != nil {
		managerOpts = append(managerOpts, node.WithMeter(kc.meter))
		generatorOpts = append(generatorOpts, generator.WithMeter(kc.meter))
	}
	if kc.tracer != nil {
		managerOpts = append(managerOpts, node.WithTracer(kc.tracer))
	}

	k.manager = node.NewManager(k.store, managerOpts...)
	k.v1 = generator.New(k.manager, k.clock, generatorOpts...)

	logger.Debug("uuidkit ready",
		"backend", k.backend,
		"clock", cfg.Clock.GetStrategy(),
		"seed_nodes", cfg.State.GetSeedNodes(),
	)
	return k, nil
}

func (k *Kit) openStore() (state.Store, error) {
	s := k.cfg.State
	switch s.GetBackend() {
	case config.BackendFile:
		return state.NewFile(s.GetPath(), s.GetSyncInterval()), nil

	case config.BackendRedis:
		rc := s.GetRedis()
		var key string
		var tls *state.TLSConfig
		if rc != nil {
			key, tls = rc.Key, rc.TLS
		}
		store, err := state.NewRedis(state.RedisOptions{
			URL:          rc.GetURL(),
			Key:          key,
			TLS:          tls,
			SyncInterval: s.GetSyncInterval(),
			ClaimTTL:     s.GetClaimTTL(),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", state.ErrStoreUnavailable, err)
		}
		k.closers = append(k.closers, namedCloser{"redis store", store})
		return store, nil

	case config.BackendEtcd:
		ec := s.GetEtcd()
		var key string
		var tls *state.TLSConfig
		if ec != nil {
			key, tls = ec.Key, ec.TLS
		}
		store, err := state.NewEtcd(state.EtcdOptions{
			Endpoints:    ec.GetEndpoints(),
			Key:          key,
			DialTimeout:  ec.GetDialTimeout(),
			TLS:          tls,
			SyncInterval: s.GetSyncInterval(),
			ClaimTTL:     s.GetClaimTTL(),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", state.ErrStoreUnavailable, err)
		}
		k.closers = append(k.closers, namedCloser{"etcd store", store})
		return store, nil

	default:
		return state.NewMemory(), nil
	}
}

func (k *Kit) newClock() clock.Clock {
	c := k.cfg.Clock
	opts := []clock.Option{clock.WithLogger(k.logger)}
	if c.GetStrategy() == config.ClockTicker {
		if d := c.GetTickInterval(); d > 0 {
			opts = append(opts, clock.WithInterval(d))
		}
		opts = append(opts, clock.WithIdleTimeout(c.GetIdleTimeout()))
		return clock.NewTicker(opts...)
	}
	return clock.NewSystem(opts...)
}

// NewLogger builds a JSON or text logger writing to w from cfg.
func NewLogger(cfg *config.LogConfig, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.GetLevel()}
	if cfg.GetFormat() == "text" {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

// Config returns the resolved configuration.
func (k *Kit) Config() *config.Config { return k.cfg }

// Store returns the state backend.
func (k *Kit) Store() state.Store { return k.store }

// Manager returns the node manager.
func (k *Kit) Manager() *node.Manager { return k.manager }

// Logger returns the kit logger.
func (k *Kit) Logger() *slog.Logger { return k.logger }

// V1 returns a new time-based UUID.
func (k *Kit) V1(ctx context.Context) (uuid.UUID, error) {
	k.used.Store(true)
	u, err := k.v1.Next(ctx)
	return u, wrap("Kit.V1", err)
}

// V4 returns a new random UUID.
func (k *Kit) V4() (uuid.UUID, error) {
	u, err := uuid.NewRandom()
	return u, wrap("Kit.V4", err)
}

// Name returns the name-based UUID of name within namespace ns.
func (k *Kit) Name(name string, ns uuid.UUID, h uuid.Hash) (uuid.UUID, error) {
	u, err := uuid.NameFromString(name, ns, h)
	return u, wrapWith("Kit.Name", err, map[string]any{"hash": string(h)})
}

// Parse decodes a UUID from text.
func (k *Kit) Parse(s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	return u, wrapWith("Kit.Parse", err, map[string]any{"input": s})
}

// Health checks the state backend.
func (k *Kit) Health(ctx context.Context) health.Status {
	checks := []health.Status{}

	switch k.backend {
	case config.BackendMemory:
		return health.Healthy("memory store: node state is not persisted")
	case config.BackendFile:
		checks = append(checks, health.FileCheck(filepath.Dir(k.cfg.State.GetPath())))
	case config.BackendEtcd:
		for _, ep := range k.cfg.State.GetEtcd().GetEndpoints() {
			checks = append(checks, health.NetworkCheck(ctx, ep))
		}
	}

	if p, ok := k.store.(health.Pinger); ok {
		checks = append(checks, health.PingCheck(ctx, k.backend, p))
	}
	checks = append(checks, health.StoreCheck(ctx, k.store))
	return health.Combine(checks...)
}

// Close writes the exact node state if any version 1 identifier was issued,
// then releases the clock and remote connections. Close is idempotent; later
// calls return the first result.
func (k *Kit) Close(ctx context.Context) error {
	k.closeOnce.Do(func() {
		var errs []error
		if k.used.Load() {
			if err := k.manager.Sync(ctx); err != nil {
				errs = append(errs, wrap("Kit.Close", err))
			}
		}
		if err := k.manager.Close(ctx); err != nil {
			k.logger.Warn("failed to release node claims", "error", err)
			errs = append(errs, wrap("Kit.Close", err))
		}
		for i := len(k.closers) - 1; i >= 0; i-- {
			nc := k.closers[i]
			if err := CloseWithLog(nc.c, k.logger, nc.name); err != nil {
				errs = append(errs, err)
			}
		}
		k.closeErr = errors.Join(errs...)
	})
	return k.closeErr
}
