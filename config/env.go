package config

import (
	"os"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvStateBackend  = "UUIDKIT_STATE_BACKEND"
	EnvStatePath     = "UUIDKIT_STATE_PATH"
	EnvRedisURL      = "UUIDKIT_REDIS_URL"
	EnvEtcdEndpoints = "UUIDKIT_ETCD_ENDPOINTS"
	EnvClock         = "UUIDKIT_CLOCK"
	EnvLogLevel      = "UUIDKIT_LOG_LEVEL"
)

// ApplyEnv overrides configuration from the process environment.
func (c *Config) ApplyEnv() {
	c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvStateBackend); ok {
		c.state().Backend = v
	}
	if v, ok := get(EnvStatePath); ok {
		c.state().Path = v
	}
	if v, ok := get(EnvRedisURL); ok {
		s := c.state()
		if s.Redis == nil {
			s.Redis = &RedisConfig{}
		}
		s.Redis.URL = v
	}
	if v, ok := get(EnvEtcdEndpoints); ok {
		// comma-separated, e.g. localhost:2379,localhost:2380
		endpoints := strings.Split(v, ",")
		for i, ep := range endpoints {
			endpoints[i] = strings.TrimSpace(ep)
		}
		s := c.state()
		if s.Etcd == nil {
			s.Etcd = &EtcdConfig{}
		}
		s.Etcd.Endpoints = endpoints
	}
	if v, ok := get(EnvClock); ok {
		if c.Clock == nil {
			c.Clock = &ClockConfig{}
		}
		c.Clock.Strategy = v
	}
	if v, ok := get(EnvLogLevel); ok {
		if c.Log == nil {
			c.Log = &LogConfig{}
		}
		c.Log.Level = v
	}
}

func (c *Config) state() *StateConfig {
	if c.State == nil {
		c.State = &StateConfig{}
	}
	return c.State
}
