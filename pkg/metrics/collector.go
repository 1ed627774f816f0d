package metrics

import (
	"time"

	"github.com/cortexops/gateway/pkg/pool"
	"github.com/cortexops/gateway/pkg/registry"
	"github.com/cortexops/gateway/pkg/scheduler"
	"github.com/cortexops/gateway/pkg/stream"
)

// Collector samples gauge metrics from the gateway components
type Collector struct {
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	hub       *stream.Hub
	pools     *pool.Manager
	stopCh    chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(reg *registry.Registry, sched *scheduler.Scheduler, hub *stream.Hub, pools *pool.Manager) *Collector {
	return &Collector{
		registry:  reg,
		scheduler: sched,
		hub:       hub,
		pools:     pools,
		stopCh:    make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectRegistryMetrics()
	c.collectSchedulerMetrics()
	c.collectStreamMetrics()
	c.collectPoolMetrics()
}

func (c *Collector) collectRegistryMetrics() {
	InstancesTotal.Reset()
	for service, instances := range c.registry.List() {
		counts := make(map[string]int)
		for _, inst := range instances {
			counts[string(inst.Status)]++
		}
		for status, n := range counts {
			InstancesTotal.WithLabelValues(service, status).Set(float64(n))
		}
	}
}

func (c *Collector) collectSchedulerMetrics() {
	stats := c.scheduler.Stats()
	TasksQueued.Set(float64(stats.Queued))

	TasksByStatus.Reset()
	for status, n := range stats.ByStatus {
		TasksByStatus.WithLabelValues(status).Set(float64(n))
	}
}

func (c *Collector) collectStreamMetrics() {
	StreamsActive.Set(float64(c.hub.Count()))
}

func (c *Collector) collectPoolMetrics() {
	for name, s := range c.pools.Stats() {
		PoolPending.WithLabelValues(name).Set(float64(s.Pending))
	}
}
