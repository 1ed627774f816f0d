/*
Package balancer implements instance selection strategies for the registry.

A LoadBalancer holds a snapshot of the healthy instances of one service
and answers Select calls with one of four strategies: round_robin,
least_connections, weighted, and random. The registry rebuilds the
snapshot whenever membership or health changes; the balancer itself
never inspects health.

# Strategies

Round Robin:
  - Cycles through the snapshot in registration order
  - The cursor survives snapshot updates as long as the set does not
    shrink, so a new instance joining does not reset the rotation

Least Connections:
  - Picks the instance with the fewest active connections, as counted
    by the registry's IncConnections/DecConnections
  - Ties break by snapshot position for determinism

Weighted:
  - Expands each instance into the ring proportionally to its Weight
  - Instances with weight zero fall back to weight one, so a
    misconfigured instance still receives traffic

Random:
  - Uniform choice, useful for stateless fan-out

# Usage

	lb := balancer.New()
	lb.Update(healthyInstances)

	inst := lb.Select(types.StrategyLeastConnections)
	if inst == nil {
		// empty snapshot
	}

Select on an empty snapshot returns nil; callers translate that into
registry.ErrNoHealthyInstance.

# See Also

  - pkg/registry for snapshot lifecycle and health filtering
  - pkg/types for the Strategy constants
*/
package balancer
