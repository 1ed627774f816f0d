/*
Package metrics exposes the gateway's Prometheus instrumentation.

Metric vectors are declared as package variables and registered on the
default registry; request handlers and the proxy update them inline,
while a background collector polls the stateful components (registry,
scheduler, stream hub, pools) and refreshes their gauges.

# Exported Metrics

Request path:
  - gateway_requests_total{plane,method,status}
  - gateway_request_duration_seconds{plane}
  - gateway_upstream_attempts_total{service,outcome}

Component gauges (collector-driven):
  - gateway_instances_total{service,status}
  - gateway_tasks_queued, gateway_tasks_total{status}
  - gateway_streams_active
  - gateway_pool_pending{pool}

# Usage

	collector := metrics.NewCollector(reg, sched, hub, pools)
	collector.Start()
	defer collector.Stop()

	mux.Handle("/gateway/metrics", metrics.Handler())

Timing a section:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RequestDuration.WithLabelValues(plane))

# See Also

  - pkg/tracker for the request-level counterpart of these numbers
  - client_golang: https://github.com/prometheus/client_golang
*/
package metrics
