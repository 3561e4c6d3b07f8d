package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/zero-day-ai/uuidkit/state"
)

// Pinger is implemented by the remote stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck loads the node state from store. A store holding no nodes is
// degraded; any other load failure is unhealthy.
func StoreCheck(ctx context.Context, store state.Store) Status {
	if store == nil {
		return Unhealthy("store cannot be nil", nil)
	}

	records, err := store.Load(ctx)
	switch {
	case err == nil:
		return Healthy(fmt.Sprintf("store holds %d node(s)", len(records)))
	case errors.Is(err, state.ErrStoreUnavailable):
		return Degraded("store holds no node state", map[string]any{"error": err.Error()})
	default:
		return Unhealthy("failed to load node state", map[string]any{"error": err.Error()})
	}
}

// PingCheck pings a remote store connection.
func PingCheck(ctx context.Context, name string, p Pinger) Status {
	if p == nil {
		return Unhealthy(fmt.Sprintf("%s: no connection", name), nil)
	}
	if err := p.Ping(ctx); err != nil {
		return Unhealthy(
			fmt.Sprintf("%s: ping failed", name),
			map[string]any{"error": err.Error()},
		)
	}
	return Healthy(fmt.Sprintf("%s: ping ok", name))
}

// NetworkCheck verifies TCP connectivity to address (host:port). A nil
// context gets a 5 second timeout.
func NetworkCheck(ctx context.Context, address string) Status {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" {
		return Unhealthy(
			fmt.Sprintf("invalid address %q", address),
			map[string]any{"address": address},
		)
	}

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("failed to connect to %s", address),
			map[string]any{
				"address": address,
				"error":   err.Error(),
			},
		)
	}
	conn.Close()

	return Healthy(fmt.Sprintf("successfully connected to %s", address))
}

// FileCheck verifies that a file or directory exists at path.
func FileCheck(path string) Status {
	if path == "" {
		return Unhealthy("path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Unhealthy(
				fmt.Sprintf("path '%s' does not exist", path),
				map[string]any{"path": path},
			)
		}
		return Unhealthy(
			fmt.Sprintf("failed to stat path '%s'", path),
			map[string]any{
				"path":  path,
				"error": err.Error(),
			},
		)
	}

	fileType := "file"
	if info.IsDir() {
		fileType = "directory"
	}
	return Healthy(fmt.Sprintf("%s '%s' exists", fileType, path))
}

// Combine aggregates multiple health checks into a single status.
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthy, degraded []string
	var healthyCount int

	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, msg)
		case StatusDegraded:
			degraded = append(degraded, msg)
		case StatusHealthy:
			healthyCount++
		}
	}

	if len(unhealthy) > 0 {
		return Unhealthy(
			fmt.Sprintf("%d check(s) failed", len(unhealthy)),
			map[string]any{
				"total":         len(checks),
				"unhealthy":     len(unhealthy),
				"degraded":      len(degraded),
				"healthy":       healthyCount,
				"failed_checks": unhealthy,
			},
		)
	}

	if len(degraded) > 0 {
		return Degraded(
			fmt.Sprintf("%d check(s) degraded", len(degraded)),
			map[string]any{
				"total":           len(checks),
				"degraded":        len(degraded),
				"healthy":         healthyCount,
				"degraded_checks": degraded,
			},
		)
	}

	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}
