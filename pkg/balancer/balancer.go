package balancer

import (
	"math/rand"
	"sync"

	"github.com/cortexops/gateway/pkg/types"
)

// LoadBalancer selects instances for one service. It holds the current
// healthy-instance snapshot and the per-strategy cursor state.
type LoadBalancer struct {
	mu      sync.Mutex
	healthy []*types.ServiceInstance
	cursor  int
	ring    []int // weighted ring of indexes into healthy
	ringIdx int
}

// New creates a load balancer with an empty snapshot.
func New() *LoadBalancer {
	return &LoadBalancer{}
}

// Update replaces the healthy-instance snapshot atomically. The cursor is
// preserved unless the new snapshot is strictly smaller than the cursor.
func (lb *LoadBalancer) Update(healthy []*types.ServiceInstance) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.healthy = healthy
	if len(healthy) <= lb.cursor {
		lb.cursor = 0
	}
	lb.rebuildRing()
}

// rebuildRing expands instances by weight into the virtual ring.
// Caller must hold lb.mu.
func (lb *LoadBalancer) rebuildRing() {
	lb.ring = lb.ring[:0]
	for i, inst := range lb.healthy {
		w := inst.Weight
		for j := 0; j < w; j++ {
			lb.ring = append(lb.ring, i)
		}
	}
	if len(lb.ring) <= lb.ringIdx {
		lb.ringIdx = 0
	}
}

// Select returns the next instance per the given strategy, or nil when
// no healthy instance exists. A nil result is a recoverable condition,
// not an error.
func (lb *LoadBalancer) Select(strategy types.Strategy) *types.ServiceInstance {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if len(lb.healthy) == 0 {
		return nil
	}

	switch strategy {
	case types.StrategyRandom:
		return lb.healthy[rand.Intn(len(lb.healthy))]

	case types.StrategyLeastConnections:
		// Ties broken by earlier position in the instance list.
		selected := lb.healthy[0]
		for _, inst := range lb.healthy[1:] {
			if inst.Connections < selected.Connections {
				selected = inst
			}
		}
		return selected

	case types.StrategyWeightedRoundRobin:
		if len(lb.ring) == 0 {
			// Total weight is zero; fall back to plain round-robin.
			return lb.roundRobin()
		}
		idx := lb.ring[lb.ringIdx%len(lb.ring)]
		lb.ringIdx = (lb.ringIdx + 1) % len(lb.ring)
		return lb.healthy[idx]

	default:
		return lb.roundRobin()
	}
}

// roundRobin advances the cursor over the snapshot. Caller must hold lb.mu.
func (lb *LoadBalancer) roundRobin() *types.ServiceInstance {
	inst := lb.healthy[lb.cursor%len(lb.healthy)]
	lb.cursor = (lb.cursor + 1) % len(lb.healthy)
	return inst
}

// Len returns the size of the current healthy snapshot.
func (lb *LoadBalancer) Len() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return len(lb.healthy)
}
