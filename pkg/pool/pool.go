package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexops/gateway/pkg/log"
)

// Standard pool names. Components pick the pool matching their workload.
const (
	PoolIO          = "io"
	PoolCPU         = "cpu"
	PoolProxy       = "proxy"
	PoolHealthCheck = "health_check"
)

// ErrPoolQueueFull is returned when a pool's virtual queue is at capacity.
var ErrPoolQueueFull = fmt.Errorf("pool queue is full")

// ErrPoolNotFound is returned for submissions to unknown pools.
var ErrPoolNotFound = fmt.Errorf("pool not found")

// Stats tracks one pool's submission counters
type Stats struct {
	Workers      int       `json:"workers"`
	QueueBound   int       `json:"queue_bound"`
	Submitted    int64     `json:"submitted"`
	Pending      int       `json:"pending"`
	Completed    int64     `json:"completed"`
	Failed       int64     `json:"failed"`
	LastActivity time.Time `json:"last_activity"`
}

// job is one queued unit of work
type job struct {
	id string
	fn func() error
}

// Pool is a fixed-size worker pool with a bounded queue. Pools cannot be
// resized in place; Manager.Resize replaces the executor and drains the
// old one.
type Pool struct {
	name    string
	workers int
	queue   chan job

	mu           sync.Mutex
	submitted    int64
	completed    int64
	failed       int64
	lastActivity time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func newPool(name string, workers, queueBound int) *Pool {
	p := &Pool{
		name:    name,
		workers: workers,
		queue:   make(chan job, queueBound),
		stopCh:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.queue:
			p.exec(j)
		case <-p.stopCh:
			// Drain remaining queued work before exiting.
			for {
				select {
				case j := <-p.queue:
					p.exec(j)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) exec(j job) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return j.fn()
	}()

	p.mu.Lock()
	if err != nil {
		p.failed++
		log.WithComponent("pool").Error().Err(err).Str("pool", p.name).Str("task_id", j.id).Msg("pool task failed")
	} else {
		p.completed++
	}
	p.lastActivity = time.Now()
	p.mu.Unlock()
}

// submit enqueues work without blocking.
func (p *Pool) submit(id string, fn func() error) error {
	select {
	case p.queue <- job{id: id, fn: fn}:
		p.mu.Lock()
		p.submitted++
		p.lastActivity = time.Now()
		p.mu.Unlock()
		return nil
	default:
		return ErrPoolQueueFull
	}
}

// stop signals workers; in-flight and queued work drains.
func (p *Pool) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *Pool) stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers:      p.workers,
		QueueBound:   cap(p.queue),
		Submitted:    p.submitted,
		Pending:      len(p.queue),
		Completed:    p.completed,
		Failed:       p.failed,
		LastActivity: p.lastActivity,
	}
}

// Manager owns the named pools.
type Manager struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

// NewManager creates the manager with the four standard pools.
func NewManager() *Manager {
	m := &Manager{pools: make(map[string]*Pool)}
	m.pools[PoolIO] = newPool(PoolIO, 20, 2000)
	m.pools[PoolCPU] = newPool(PoolCPU, 4, 500)
	m.pools[PoolProxy] = newPool(PoolProxy, 50, 5000)
	m.pools[PoolHealthCheck] = newPool(PoolHealthCheck, 5, 100)
	return m
}

// Submit queues fn on the named pool and returns a task id immediately.
func (m *Manager) Submit(poolName string, fn func() error) (string, error) {
	m.mu.RLock()
	p, ok := m.pools[poolName]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPoolNotFound, poolName)
	}

	id := uuid.New().String()
	if err := p.submit(id, fn); err != nil {
		return "", err
	}
	return id, nil
}

// Resize replaces the named pool with a new executor of the given size.
// In-flight work drains on the old pool and is never interrupted.
func (m *Manager) Resize(poolName string, workers, queueBound int) error {
	if workers <= 0 || queueBound <= 0 {
		return fmt.Errorf("workers and queue bound must be positive")
	}

	m.mu.Lock()
	old, ok := m.pools[poolName]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPoolNotFound, poolName)
	}
	m.pools[poolName] = newPool(poolName, workers, queueBound)
	m.mu.Unlock()

	old.stop()
	log.WithComponent("pool").Info().
		Str("pool", poolName).
		Int("workers", workers).
		Int("queue_bound", queueBound).
		Msg("pool resized")
	return nil
}

// Stats returns per-pool stats.
func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Stats, len(m.pools))
	for name, p := range m.pools {
		out[name] = p.stats()
	}
	return out
}

// Health reports degraded pools. A pool is degraded when queue
// utilisation exceeds 90%, when the success rate drops below 95% over
// more than 10 submissions, or when pending work exceeds twice the
// worker count.
func (m *Manager) Health() map[string]string {
	stats := m.Stats()
	out := make(map[string]string, len(stats))
	for name, s := range stats {
		out[name] = healthOf(s)
	}
	return out
}

func healthOf(s Stats) string {
	if s.QueueBound > 0 && float64(s.Pending)/float64(s.QueueBound) > 0.9 {
		return "degraded"
	}
	finished := s.Completed + s.Failed
	if finished > 10 && float64(s.Completed)/float64(finished) < 0.95 {
		return "degraded"
	}
	if s.Pending > 2*s.Workers {
		return "degraded"
	}
	return "healthy"
}

// Shutdown stops every pool, draining queued work.
func (m *Manager) Shutdown(grace time.Duration) {
	m.mu.Lock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, p := range pools {
			p.stop()
			p.wg.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		log.WithComponent("pool").Warn().Msg("pool shutdown grace period expired")
	}
}
