// Package config loads uuidkit.yaml configuration files.
//
// A configuration selects the state backend, the clock strategy, the retry
// policy of the version 1 generator and the log output. Every field is
// optional; the Get methods return the documented default for missing or
// unparsable values. Environment variables override the file, see ApplyEnv.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/uuidkit/state"
)

// File names searched by Load when given a directory.
const (
	FileName    = "uuidkit.yaml"
	AltFileName = "uuidkit.yml"
)

// State backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendEtcd   = "etcd"
)

// Clock strategies.
const (
	ClockSystem = "system"
	ClockTicker = "ticker"
)

// Config represents a uuidkit.yaml configuration file.
type Config struct {
	State     *StateConfig     `yaml:"state,omitempty"`
	Clock     *ClockConfig     `yaml:"clock,omitempty"`
	Generator *GeneratorConfig `yaml:"generator,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty"`
}

// StateConfig selects where node state is persisted.
type StateConfig struct {
	// Backend is one of memory, file, redis or etcd.
	// Default: memory
	Backend string `yaml:"backend,omitempty"`

	// Path is the state document for the file backend.
	// Default: uuidkit-state.yaml
	Path string `yaml:"path,omitempty"`

	// SyncInterval is the minimum time between persists.
	// Format: Go duration string (e.g., "5s")
	// Default: 5s
	SyncInterval string `yaml:"sync_interval,omitempty"`

	// SeedNodes is the minimum number of node identities.
	// Default: 1
	SeedNodes int `yaml:"seed_nodes,omitempty"`

	// ClaimTTL is how long a node claim outlives its process on the redis
	// and etcd backends.
	// Format: Go duration string (e.g., "30s")
	// Default: 30s
	ClaimTTL string `yaml:"claim_ttl,omitempty"`

	Redis *RedisConfig `yaml:"redis,omitempty"`
	Etcd  *EtcdConfig  `yaml:"etcd,omitempty"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	URL string           `yaml:"url,omitempty"` // Default: redis://localhost:6379
	Key string           `yaml:"key,omitempty"` // Default: uuidkit:state
	TLS *state.TLSConfig `yaml:"tls,omitempty"`
}

// EtcdConfig configures the etcd backend.
type EtcdConfig struct {
	Endpoints   []string         `yaml:"endpoints,omitempty"`    // Default: [localhost:2379]
	Key         string           `yaml:"key,omitempty"`          // Default: /uuidkit/state
	DialTimeout string           `yaml:"dial_timeout,omitempty"` // Default: 5s
	TLS         *state.TLSConfig `yaml:"tls,omitempty"`
}

// ClockConfig selects the clock strategy.
type ClockConfig struct {
	// Strategy is system or ticker.
	// Default: system
	Strategy string `yaml:"strategy,omitempty"`

	// TickInterval is the step of the ticker strategy.
	// Default: 1ms (10ms on Windows)
	TickInterval string `yaml:"tick_interval,omitempty"`

	// IdleTimeout stops the ticker's background task after this long
	// without requests.
	// Default: 200ms
	IdleTimeout string `yaml:"idle_timeout,omitempty"`
}

// GeneratorConfig bounds version 1 retries.
type GeneratorConfig struct {
	// MaxAttempts is the number of clock reads per identifier.
	// Default: 100
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// Backoff is the pause after every rotation over all nodes.
	// Default: 100us
	Backoff string `yaml:"backoff,omitempty"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error. Default: info
	Format string `yaml:"format,omitempty"` // json or text. Default: json
}

// Default returns an empty configuration, which resolves every setting to its
// default.
func Default() *Config {
	return &Config{}
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// GetBackend returns the configured backend or memory.
func (s *StateConfig) GetBackend() string {
	if s == nil || s.Backend == "" {
		return BackendMemory
	}
	return strings.ToLower(s.Backend)
}

// GetPath returns the state document path or the default.
func (s *StateConfig) GetPath() string {
	if s == nil || s.Path == "" {
		return "uuidkit-state.yaml"
	}
	return s.Path
}

// GetSyncInterval returns the sync interval or the default.
func (s *StateConfig) GetSyncInterval() time.Duration {
	if s == nil {
		return state.DefaultSyncInterval
	}
	return parseDuration(s.SyncInterval, state.DefaultSyncInterval)
}

// GetClaimTTL returns the node claim lifetime or the default.
func (s *StateConfig) GetClaimTTL() time.Duration {
	if s == nil {
		return state.DefaultClaimTTL
	}
	return parseDuration(s.ClaimTTL, state.DefaultClaimTTL)
}

// GetSeedNodes returns the configured node count or 1.
func (s *StateConfig) GetSeedNodes() int {
	if s == nil || s.SeedNodes <= 0 {
		return 1
	}
	return s.SeedNodes
}

// GetRedis returns the redis section, which may be nil.
func (s *StateConfig) GetRedis() *RedisConfig {
	if s == nil {
		return nil
	}
	return s.Redis
}

// GetEtcd returns the etcd section, which may be nil.
func (s *StateConfig) GetEtcd() *EtcdConfig {
	if s == nil {
		return nil
	}
	return s.Etcd
}

// GetURL returns the redis URL or the default.
func (r *RedisConfig) GetURL() string {
	if r == nil || r.URL == "" {
		return "redis://localhost:6379"
	}
	return r.URL
}

// GetEndpoints returns the etcd endpoints or the default.
func (e *EtcdConfig) GetEndpoints() []string {
	if e == nil || len(e.Endpoints) == 0 {
		return []string{"localhost:2379"}
	}
	return e.Endpoints
}

// GetDialTimeout returns the etcd dial timeout or 5s.
func (e *EtcdConfig) GetDialTimeout() time.Duration {
	if e == nil {
		return 5 * time.Second
	}
	return parseDuration(e.DialTimeout, 5*time.Second)
}

// GetStrategy returns the clock strategy or system.
func (c *ClockConfig) GetStrategy() string {
	if c == nil || c.Strategy == "" {
		return ClockSystem
	}
	return strings.ToLower(c.Strategy)
}

// GetTickInterval returns the ticker step, or zero to use the clock's
// platform default.
func (c *ClockConfig) GetTickInterval() time.Duration {
	if c == nil {
		return 0
	}
	return parseDuration(c.TickInterval, 0)
}

// GetIdleTimeout returns the ticker idle timeout or 200ms.
func (c *ClockConfig) GetIdleTimeout() time.Duration {
	if c == nil {
		return 200 * time.Millisecond
	}
	return parseDuration(c.IdleTimeout, 200*time.Millisecond)
}

// GetMaxAttempts returns the attempt ceiling or 100.
func (g *GeneratorConfig) GetMaxAttempts() int {
	if g == nil || g.MaxAttempts <= 0 {
		return 100
	}
	return g.MaxAttempts
}

// GetBackoff returns the rotation backoff or 100us.
func (g *GeneratorConfig) GetBackoff() time.Duration {
	if g == nil {
		return 100 * time.Microsecond
	}
	return parseDuration(g.Backoff, 100*time.Microsecond)
}

// GetLevel returns the slog level, defaulting to info.
func (l *LogConfig) GetLevel() slog.Level {
	if l == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetFormat returns json or text, defaulting to json.
func (l *LogConfig) GetFormat() string {
	if l == nil || !strings.EqualFold(l.Format, "text") {
		return "json"
	}
	return "text"
}

// Validate reports settings that cannot fall back to a default.
func (c *Config) Validate() error {
	switch b := c.State.GetBackend(); b {
	case BackendMemory, BackendFile, BackendRedis, BackendEtcd:
	default:
		return fmt.Errorf("unknown state backend %q", b)
	}
	switch s := c.Clock.GetStrategy(); s {
	case ClockSystem, ClockTicker:
	default:
		return fmt.Errorf("unknown clock strategy %q", s)
	}
	if c.State != nil && c.State.SyncInterval != "" {
		if _, err := time.ParseDuration(c.State.SyncInterval); err != nil {
			return fmt.Errorf("invalid state.sync_interval: %w", err)
		}
	}
	if c.State != nil && c.State.ClaimTTL != "" {
		if _, err := time.ParseDuration(c.State.ClaimTTL); err != nil {
			return fmt.Errorf("invalid state.claim_ttl: %w", err)
		}
	}
	return nil
}

// Load reads and parses a uuidkit.yaml file from the given path.
// If the path is a directory, it looks for uuidkit.yaml or uuidkit.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range []string{FileName, AltFileName} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no %s or %s found in %s", FileName, AltFileName, path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}
