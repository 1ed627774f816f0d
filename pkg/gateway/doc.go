/*
Package gateway wires the gateway's components into an HTTP server.

The server mounts three traffic planes and an admin surface on a chi
router, each with its own authentication, and routes requests either to
backend services through the proxy or to in-process handlers. This is
the composition root: everything else in the repo is a library that
this package assembles.

# Architecture

	┌────────────────────── GATEWAY SERVER ────────────────────┐
	│                                                            │
	│  /frontend/*  user JWT        ──▶ /api/<prefix>/...       │
	│  /v1/*        API key         ──▶ /api/v1/<prefix>/...    │
	│  /system/*    internal token  ──▶ /api/system/... or      │
	│                                   local handlers           │
	│  /gateway/*   admin surface                                │
	│                                                            │
	│  Middleware per plane:                                     │
	│    request ID → tracking → rate limit → auth               │
	│                                                            │
	│  ┌──────────┐ ┌───────┐ ┌───────────┐ ┌──────────┐       │
	│  │ registry │ │ proxy │ │ scheduler │ │ stream   │       │
	│  │ + bridge │ │       │ │ + pools   │ │ hub      │       │
	│  └──────────┘ └───────┘ └───────────┘ └──────────┘       │
	└────────────────────────────────────────────────────────┘

# Traffic Planes

Each plane strips its own prefix, resolves the first remaining path
segment against the plane's route table, authorizes the caller for
"<prefix>:read" (GET, HEAD, OPTIONS) or "<prefix>:write" (everything
else), and forwards to a healthy instance of the route's service. The
frontend plane exempts /frontend/auth/login and /frontend/auth/register
from both authentication and the permission check, since those calls
exist to obtain the credential.

System-plane routes marked local are served in process instead of
being forwarded:

  - tasks: submit, get, cancel, and stats on the scheduler
  - pools: stats, health, and resize on the pool manager
  - monitoring: in-flight requests, recent errors, latency stats,
    top endpoints, config view (secrets omitted), runtime info

Responses that negotiate text/event-stream are forwarded through the
streaming path and flushed chunk by chunk.

# Admin Surface

/gateway carries the gateway's own API:

  - GET /gateway/health and /gateway/metrics are open
  - GET /gateway/streams/{id}/subscribe is open; a stream ID is an
    unguessable capability handed out at creation
  - service registration, deregistration, health reporting, stream
    creation and event publishing require an internal token

# Middleware

Every plane request passes through, in order: request ID assignment
(X-Request-ID, echoed on the response), tracker Begin/End with status
capture, a per-client-IP token bucket, and the plane's authenticator.
Authentication failures, rate limits, and handler errors all leave
through apierror.Write, so every error body has the same envelope.

# Usage

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err.Error())
	}

	srv, err := gateway.New(cfg)
	if err != nil {
		log.Fatal(err.Error())
	}

	if err := srv.Start(); err != nil {
		log.Fatal(err.Error())
	}
	defer srv.Shutdown(context.Background())

Start brings up the background loops (registry health, bridge
reconcile, stream reaper, tracker sweeper, metrics collector) and the
HTTP listener; Shutdown stops them in reverse order and drains the
listener within the context deadline.

# Integration Points

Everything. This package imports the registry, bridge, proxy,
scheduler, pool manager, stream hub, tracker, auth verifiers, rbac
engine, config, metrics, and apierror, and is imported only by
cmd/gateway.

# See Also

  - cmd/gateway for flags and process lifecycle
  - pkg/config for the route tables the planes consume
  - chi router: https://github.com/go-chi/chi
*/
package gateway
