package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cortexops/gateway/pkg/events"
	"github.com/cortexops/gateway/pkg/log"
	"github.com/cortexops/gateway/pkg/types"
)

// StartHealthLoop begins the periodic probe loop. Individual probe
// failures mark instances unhealthy; they never terminate the loop.
func (r *Registry) StartHealthLoop() {
	go r.healthLoop()
}

// StopHealthLoop stops the probe loop and waits for the current cycle.
func (r *Registry) StopHealthLoop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Registry) healthLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.CheckAll(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// CheckAll probes every registered instance concurrently and returns the
// per-instance results keyed by instance key. Probes run on the wired
// worker pool when one is set, on a bounded goroutine group otherwise.
func (r *Registry) CheckAll(ctx context.Context) map[string]bool {
	r.mu.RLock()
	submit := r.probeSubmit
	var targets []*types.ServiceInstance
	for _, instances := range r.services {
		targets = append(targets, instances...)
	}
	r.mu.RUnlock()

	results := make(map[string]bool, len(targets))
	if len(targets) == 0 {
		return results
	}

	type outcome struct {
		inst    *types.ServiceInstance
		healthy bool
	}
	outcomes := make(chan outcome, len(targets))

	if submit != nil {
		var wg sync.WaitGroup
		for _, inst := range targets {
			inst := inst
			wg.Add(1)
			probeOne := func() error {
				defer wg.Done()
				outcomes <- outcome{inst: inst, healthy: r.probe(ctx, inst)}
				return nil
			}
			if err := submit(probeOne); err != nil {
				// Pool queue full; probe inline rather than skip the
				// instance this cycle.
				_ = probeOne()
			}
		}
		wg.Wait()
	} else {
		var g errgroup.Group
		g.SetLimit(16)
		for _, inst := range targets {
			inst := inst
			g.Go(func() error {
				outcomes <- outcome{inst: inst, healthy: r.probe(ctx, inst)}
				return nil
			})
		}
		// Goroutines only send to a buffered channel; Wait cannot fail.
		_ = g.Wait()
	}
	close(outcomes)

	for o := range outcomes {
		results[o.inst.Key()] = o.healthy
	}
	return results
}

// probe runs one health check against an instance, records the transition,
// and refreshes the balancer snapshot when the status changed. Returns the
// resulting healthy flag.
func (r *Registry) probe(ctx context.Context, inst *types.ServiceInstance) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := checkerFor(inst).Check(probeCtx)

	newStatus := types.InstanceUnhealthy
	if result.Healthy {
		newStatus = types.InstanceHealthy
	}

	r.mu.Lock()
	// The instance may have been deregistered while the probe ran.
	current := r.findLocked(inst.ServiceName, inst.InstanceID)
	if current == nil {
		r.mu.Unlock()
		return result.Healthy
	}
	prev := current.Status
	current.Status = newStatus
	current.LastHealthCheck = result.CheckedAt
	if prev != newStatus {
		r.refreshLocked(inst.ServiceName)
	}
	r.mu.Unlock()

	if prev != newStatus {
		eventType := events.EventHealthLost
		if newStatus == types.InstanceHealthy {
			eventType = events.EventHealthRestored
		}
		r.broker.Publish(&events.Event{
			ID:       uuid.New().String(),
			Type:     eventType,
			Service:  inst.ServiceName,
			Instance: inst.InstanceID,
			Message:  fmt.Sprintf("health transition %s -> %s: %s", prev, newStatus, result.Message),
		})

		log.WithService(inst.ServiceName).Warn().
			Str("instance", inst.InstanceID).
			Str("from", string(prev)).
			Str("to", string(newStatus)).
			Str("detail", result.Message).
			Msg("instance health transition")
	}

	return result.Healthy
}

// findLocked returns the live instance pointer, or nil. Caller holds r.mu.
func (r *Registry) findLocked(serviceName, instanceID string) *types.ServiceInstance {
	for _, inst := range r.services[serviceName] {
		if inst.InstanceID == instanceID {
			return inst
		}
	}
	return nil
}
