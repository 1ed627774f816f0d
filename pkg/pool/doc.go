/*
Package pool provides named bounded worker pools for background work.

The pool manager owns a fixed set of standard pools (io, cpu, proxy,
health_check) sized for their workload class. Components submit
fire-and-forget functions to a pool by name; each pool runs them on its
own goroutines behind a bounded queue and tracks success and failure
counts for health reporting.

# Core Components

Manager:
  - Routes Submit calls to the named pool
  - Resize replaces a pool with a new worker/queue configuration,
    draining the old one first
  - Stats and Health expose per-pool counters and a coarse verdict
  - Shutdown drains every pool within a grace period

Pool:
  - Fixed worker count reading from a bounded channel
  - Non-blocking submit: a full queue returns ErrPoolQueueFull
  - Panics in submitted work are recovered and counted as failures

# Health Rules

Health() classifies each pool:

  - unhealthy: queue utilization above 90%
  - degraded: success ratio below 95% once enough work has finished,
    or pending work exceeding twice the worker count
  - healthy: otherwise

The thresholds are deliberately coarse; the signal is for dashboards
and the admin surface, not for automated remediation.

# Usage

	pools := pool.NewManager()
	defer pools.Shutdown(5 * time.Second)

	id, err := pools.Submit("io", func() error {
		return flushToDisk()
	})
	if err != nil {
		// pool.ErrPoolNotFound or pool.ErrPoolQueueFull
	}

Resizing under load:

	err := pools.Resize("proxy", 100, 1000)

Resize drains the old pool before the replacement takes over, so no
accepted work is lost.

# Integration Points

  - pkg/gateway: the system plane exposes pool stats, health, and resize
  - pkg/metrics: per-pool queue depth and completion counters

# See Also

  - pkg/scheduler for tracked, retryable tasks with results
*/
package pool
