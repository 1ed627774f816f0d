/*
Package registry provides in-memory service discovery for the gateway.

The registry tracks every backend service instance known to the gateway,
maintains per-instance health state via periodic probes, and answers
instance-selection queries for the proxy layer. It is the single source
of truth for "which instances exist and which of them can take traffic".

# Architecture

The registry keeps all state in memory under a single mutex, with a
per-service load balancer fed from health snapshots:

	┌──────────────────── SERVICE REGISTRY ────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │             Registry                        │          │
	│  │  - services: map[name][]*ServiceInstance   │          │
	│  │  - balancers: map[name]*LoadBalancer       │          │
	│  │  - guarded by a single RWMutex             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Health Loop                       │          │
	│  │  - ticker at HealthCheckInterval            │          │
	│  │  - probes GET <instance>/health             │          │
	│  │  - 2xx → healthy, anything else → unhealthy │          │
	│  │  - transitions publish broker events        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Balancer Snapshots                   │          │
	│  │  - rebuilt whenever membership or health    │          │
	│  │    changes for a service                    │          │
	│  │  - Select() never sees an unhealthy member  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Registry:
  - Register/Deregister mutate membership
  - Select picks a healthy instance by strategy
  - Get/List/ServiceNames expose read-only views
  - SetStatus applies externally reported health
  - IncConnections/DecConnections feed least-connections

Health Loop:
  - Started with StartHealthLoop, stopped with StopHealthLoop
  - CheckAll probes every instance concurrently and returns the
    per-instance verdicts, usable directly from admin handlers

Events:
  - Instance registration, deregistration, and health transitions are
    published on the events broker so the SSE hub and metrics can react

# Usage

Creating a registry and registering an instance:

	broker := events.NewBroker()
	broker.Start()

	reg := registry.New(broker, 30*time.Second)
	reg.StartHealthLoop()
	defer reg.StopHealthLoop()

	inst, err := reg.Register(&types.RegistrationRequest{
		ServiceName: "agent-service",
		InstanceID:  "agent-1",
		Host:        "10.0.0.5",
		Port:        8001,
		Weight:      2,
	})

Selecting an instance for a request:

	inst, err := reg.Select("agent-service", types.StrategyRoundRobin)
	if err != nil {
		// registry.ErrServiceNotFound or registry.ErrNoHealthyInstance
	}

	reg.IncConnections(inst.ServiceName, inst.InstanceID)
	defer reg.DecConnections(inst.ServiceName, inst.InstanceID)

# Health Semantics

A newly registered instance starts healthy and is probed on the next
health cycle. The probe is a plain GET against the instance's /health
endpoint with a short timeout; a 2xx response keeps the instance in
rotation, everything else (including connection errors) removes it.
Instances recover automatically on the next passing probe, so a flapping
backend needs no manual intervention.

Re-registering an existing instance updates its metadata in place and
preserves the active connection count, so rolling restarts of a backend
do not distort least-connections selection.

# Integration Points

This package integrates with:

  - pkg/balancer: per-service selection over healthy snapshots
  - pkg/bridge: registration API plus persistence of the membership
  - pkg/events: lifecycle and health transition notifications
  - pkg/gateway: Select() on every proxied request
  - pkg/metrics: instance counts exported per service

# Design Patterns

Snapshot Selection:
  - The balancer holds an immutable slice of healthy instances
  - Rebuilt on any membership or health change
  - Select never takes the registry lock for long

Event-Driven Observers:
  - The registry never calls its consumers directly
  - Observers subscribe to the broker and react to transitions

# Troubleshooting

No Healthy Instance:
  - Symptom: Select returns ErrNoHealthyInstance
  - Check: instance /health endpoints respond 2xx
  - Check: health loop is running (StartHealthLoop called)

Instances Flapping:
  - Symptom: repeated healthy/unhealthy transitions in events
  - Cause: backend /health is slow or overloaded
  - Solution: raise the backend's health budget or the probe interval

# See Also

  - pkg/balancer for strategy implementations
  - pkg/bridge for persistence and restore on restart
  - pkg/health for the probe primitives
*/
package registry
