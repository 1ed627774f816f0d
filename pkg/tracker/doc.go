/*
Package tracker records in-flight requests and recent outcomes.

Every request entering a traffic plane is assigned a request ID and
tracked from Begin to End. The tracker keeps the current in-flight set,
aggregate counters, latency percentiles, per-endpoint hit counts, and a
fixed-size ring of recent errors. It backs the monitoring views on the
system plane.

# Tracked Data

In-Flight:
  - request ID, method, path, client address, start time
  - entries older than the stale cutoff are purged by a sweeper, so a
    handler that never calls End cannot leak memory forever

Outcomes:
  - total and per-status-class counts
  - error rate over completed requests
  - latency min/max/avg and p50/p95/p99 over a bounded sample
  - top endpoints by hit count

Errors:
  - ring buffer of the most recent failures (status, path, message,
    time); the ring wraps, old entries are overwritten

# Usage

	tr := tracker.New()
	tr.StartSweeper(time.Minute)
	defer tr.StopSweeper()

	id := tr.Begin(r)
	defer func() { tr.End(id, status, errMsg) }()

End with an unknown ID is a no-op, so double-End bugs stay harmless.

# Integration Points

  - pkg/gateway: the tracking middleware wraps every plane, and the
    system plane exposes InFlight, Errors, and Stats as JSON views
  - pkg/metrics: counters are mirrored into Prometheus

# See Also

  - pkg/metrics for the exported counterpart of these numbers
*/
package tracker
