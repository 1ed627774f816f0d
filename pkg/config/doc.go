/*
Package config loads and validates the gateway configuration.

Configuration comes from two places: the process environment for scalar
settings (port, secrets, timeouts, pool sizes) and an optional YAML
file for the routing tables. FromEnv assembles both into a Config and
Validate rejects inconsistent setups before anything starts listening.

# Environment Variables

Every scalar has a default except the two secrets, which are required:

	GATEWAY_PORT               listen port (default 8080)
	GATEWAY_DATA_DIR           bbolt data directory (default /var/lib/gateway)
	JWT_SECRET_KEY             user token signing secret (required)
	INTERNAL_SECRET_KEY        internal token secret (required)
	HEALTH_CHECK_INTERVAL_SEC  registry probe interval (default 30)
	PROXY_TIMEOUT_SEC          per-forward budget (default 30)
	PROXY_MAX_RETRIES          attempts per forward (default 3)
	TASK_POOL_SIZE             scheduler workers (default 10)
	QUEUE_SIZE                 scheduler queue bound (default 1000)
	STREAM_DEFAULT_TIMEOUT     SSE reap timeout, seconds (default 300)
	STREAM_KEEPALIVE           SSE keepalive interval, seconds (default 30)
	GATEWAY_ROUTES_FILE        optional YAML routing tables
	LOG_LEVEL, LOG_JSON        logging setup

# Routing Tables

Each traffic plane (frontend, v1, system) has a PlaneRoutes: the
upstream path prefix it maps onto, a balancing strategy, and a list of
routes keyed by the first path segment after the plane. A route is
either forwarded to a named service or, on the system plane, handled
locally in-process:

	system:
	  path_prefix: /api/system
	  routes:
	    - prefix: tasks
	      mode: local
	    - prefix: models
	      mode: forward
	      service: model-service

DefaultRoutes supplies the built-in tables; a routes file replaces them
entirely rather than merging. Validate rejects duplicate prefixes
within a plane and forward routes without a service.

# Usage

	cfg, err := config.FromEnv() // validates before returning
	if err != nil {
		return err
	}

	route := cfg.Routes.System.Lookup("tasks")

# See Also

  - pkg/gateway for how the planes consume these tables
*/
package config
