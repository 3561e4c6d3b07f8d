// Package health checks the media that version 1 node state is persisted to.
//
// # Health Check Functions
//
//   - StoreCheck: Load the node state from a state.Store
//   - PingCheck: Ping a remote store connection
//   - NetworkCheck: Verify TCP connectivity to a host:port
//   - FileCheck: Verify a file or directory exists
//   - Combine: Aggregate multiple health checks into a single status
//
// # Usage Example
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	overall := health.Combine(
//	    health.FileCheck(filepath.Dir(statePath)),
//	    health.StoreCheck(ctx, store),
//	)
//	if overall.IsUnhealthy() {
//	    log.Printf("Health check failed: %s", overall.Message)
//	}
//
// # Health Status Priority
//
// When combining health checks with Combine(), the result follows this priority:
//
//   - Unhealthy: If any check is unhealthy, the combined result is unhealthy
//   - Degraded: If any check is degraded (and none unhealthy), the result is degraded
//   - Healthy: If all checks are healthy, the result is healthy
//
// A store without persisted nodes is degraded rather than unhealthy:
// generation works, but node identities are new random ones.
package health
