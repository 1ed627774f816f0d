package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexops/gateway/pkg/balancer"
	"github.com/cortexops/gateway/pkg/events"
	"github.com/cortexops/gateway/pkg/health"
	"github.com/cortexops/gateway/pkg/log"
	"github.com/cortexops/gateway/pkg/types"
)

// ErrNoHealthyInstance is returned by Select when a service has no
// selectable instance. Callers map it to a 503.
var ErrNoHealthyInstance = fmt.Errorf("no healthy instance")

// ErrServiceNotFound is returned when a service has never been registered.
var ErrServiceNotFound = fmt.Errorf("service not found")

// Registry holds all registered service instances and owns their
// lifecycle. All mutation is serialised under a single mutex; selects
// operate on per-service snapshots maintained in the load balancers.
type Registry struct {
	mu          sync.RWMutex
	services    map[string][]*types.ServiceInstance
	balancers   map[string]*balancer.LoadBalancer
	broker      *events.Broker
	probeSubmit func(fn func() error) error

	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a registry. The broker receives register/deregister and
// health transition notifications; it may be shared with other components.
func New(broker *events.Broker, healthCheckInterval time.Duration) *Registry {
	if healthCheckInterval <= 0 {
		healthCheckInterval = 30 * time.Second
	}
	return &Registry{
		services:  make(map[string][]*types.ServiceInstance),
		balancers: make(map[string]*balancer.LoadBalancer),
		broker:    broker,
		interval:  healthCheckInterval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// UseProbePool routes health-check probes through a shared worker pool.
// Without one, CheckAll runs probes on its own bounded goroutine group.
// Must be called before the health loop starts.
func (r *Registry) UseProbePool(submit func(fn func() error) error) {
	r.mu.Lock()
	r.probeSubmit = submit
	r.mu.Unlock()
}

// Register inserts or merges an instance. An existing instance with the
// same (service, instance_id) identity is replaced in place. Status resets
// to healthy and an immediate synchronous probe runs when the instance has
// a probe path.
func (r *Registry) Register(req *types.RegistrationRequest) (*types.ServiceInstance, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registration: %w", err)
	}

	weight := req.Weight
	if weight < 1 {
		weight = 1
	}

	inst := &types.ServiceInstance{
		ServiceName:     req.ServiceName,
		InstanceID:      req.InstanceID,
		Host:            req.Host,
		Port:            req.Port,
		Endpoints:       req.Endpoints,
		Metadata:        req.Metadata,
		Weight:          weight,
		Status:          types.InstanceHealthy,
		HealthCheckPath: req.HealthCheckPath,
		RegisterTime:    time.Now(),
	}

	r.mu.Lock()
	instances := r.services[req.ServiceName]
	replaced := false
	for i, existing := range instances {
		if existing.InstanceID == req.InstanceID {
			// Preserve connection accounting across re-registration.
			inst.Connections = existing.Connections
			inst.RegisterTime = existing.RegisterTime
			instances[i] = inst
			replaced = true
			break
		}
	}
	if !replaced {
		instances = append(instances, inst)
	}
	r.services[req.ServiceName] = instances
	if _, ok := r.balancers[req.ServiceName]; !ok {
		r.balancers[req.ServiceName] = balancer.New()
	}
	r.refreshLocked(req.ServiceName)
	r.mu.Unlock()

	// Initial probe runs synchronously so a registration immediately
	// followed by a select sees the real instance state.
	if inst.HealthCheckURL() != "" {
		r.probe(context.Background(), inst)
	}

	r.broker.Publish(&events.Event{
		ID:       uuid.New().String(),
		Type:     events.EventServiceRegistered,
		Service:  inst.ServiceName,
		Instance: inst.InstanceID,
		Message:  fmt.Sprintf("instance %s registered at %s", inst.InstanceID, inst.Address()),
	})

	log.WithService(inst.ServiceName).Info().
		Str("instance", inst.InstanceID).
		Str("address", inst.Address()).
		Msg("instance registered")

	r.mu.RLock()
	snap := *inst
	r.mu.RUnlock()
	return &snap, nil
}

// Deregister removes an instance. Removing the last instance of a service
// also removes the service entry and its load balancer.
func (r *Registry) Deregister(serviceName, instanceID string) error {
	r.mu.Lock()
	instances, ok := r.services[serviceName]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceNotFound, serviceName)
	}

	found := false
	remaining := instances[:0]
	for _, inst := range instances {
		if inst.InstanceID == instanceID {
			found = true
			continue
		}
		remaining = append(remaining, inst)
	}
	if !found {
		r.mu.Unlock()
		return fmt.Errorf("instance not found: %s/%s", serviceName, instanceID)
	}

	if len(remaining) == 0 {
		delete(r.services, serviceName)
		delete(r.balancers, serviceName)
	} else {
		r.services[serviceName] = remaining
		r.refreshLocked(serviceName)
	}
	r.mu.Unlock()

	r.broker.Publish(&events.Event{
		ID:       uuid.New().String(),
		Type:     events.EventServiceDeregistered,
		Service:  serviceName,
		Instance: instanceID,
		Message:  fmt.Sprintf("instance %s deregistered", instanceID),
	})

	log.WithService(serviceName).Info().
		Str("instance", instanceID).
		Msg("instance deregistered")

	return nil
}

// Select returns a healthy instance for the service per the strategy.
func (r *Registry) Select(serviceName string, strategy types.Strategy) (*types.ServiceInstance, error) {
	r.mu.RLock()
	lb, ok := r.balancers[serviceName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceName)
	}

	inst := lb.Select(strategy)
	if inst == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHealthyInstance, serviceName)
	}
	return inst, nil
}

// cloneLocked copies instances by value so callers can read and marshal
// them without holding r.mu. Caller must hold r.mu.
func cloneLocked(instances []*types.ServiceInstance) []*types.ServiceInstance {
	out := make([]*types.ServiceInstance, len(instances))
	for i, inst := range instances {
		c := *inst
		out[i] = &c
	}
	return out
}

// Get returns value copies of all instances of one service.
func (r *Registry) Get(serviceName string) ([]*types.ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances, ok := r.services[serviceName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceName)
	}
	return cloneLocked(instances), nil
}

// List returns a value-copy snapshot of all services and their instances.
func (r *Registry) List() map[string][]*types.ServiceInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]*types.ServiceInstance, len(r.services))
	for name, instances := range r.services {
		out[name] = cloneLocked(instances)
	}
	return out
}

// ServiceNames returns the registered service names.
func (r *Registry) ServiceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

// IncConnections records one new in-flight connection to the instance.
func (r *Registry) IncConnections(serviceName, instanceID string) {
	r.adjustConnections(serviceName, instanceID, 1)
}

// DecConnections records completion of an in-flight connection.
func (r *Registry) DecConnections(serviceName, instanceID string) {
	r.adjustConnections(serviceName, instanceID, -1)
}

func (r *Registry) adjustConnections(serviceName, instanceID string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, inst := range r.services[serviceName] {
		if inst.InstanceID == instanceID {
			inst.Connections += delta
			if inst.Connections < 0 {
				inst.Connections = 0
			}
			// The balancer snapshot carries its own copies, so
			// least-connections needs a refresh to see the new count.
			r.refreshLocked(serviceName)
			return
		}
	}
}

// SetStatus forces an instance status (used by the bridge when a backend
// reports its own state change) and refreshes the balancer snapshot.
func (r *Registry) SetStatus(serviceName, instanceID string, status types.InstanceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, inst := range r.services[serviceName] {
		if inst.InstanceID == instanceID {
			inst.Status = status
			r.refreshLocked(serviceName)
			return nil
		}
	}
	return fmt.Errorf("instance not found: %s/%s", serviceName, instanceID)
}

// refreshLocked rebuilds the balancer snapshot for one service. The
// snapshot holds value copies: the balancer reads them under its own
// mutex, so it must never share the live instances mutated under r.mu.
// Caller must hold r.mu.
func (r *Registry) refreshLocked(serviceName string) {
	lb, ok := r.balancers[serviceName]
	if !ok {
		return
	}
	var healthy []*types.ServiceInstance
	for _, inst := range r.services[serviceName] {
		if inst.Status == types.InstanceHealthy {
			c := *inst
			healthy = append(healthy, &c)
		}
	}
	lb.Update(healthy)
}

// Stats summarises the registry state for introspection endpoints.
type Stats struct {
	Services         int `json:"services"`
	Instances        int `json:"instances"`
	HealthyInstances int `json:"healthy_instances"`
}

// Stats returns aggregate counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Services: len(r.services)}
	for _, instances := range r.services {
		s.Instances += len(instances)
		for _, inst := range instances {
			if inst.Status == types.InstanceHealthy {
				s.HealthyInstances++
			}
		}
	}
	return s
}

// checkerFor builds the probe for an instance. HTTP when a probe path is
// configured, TCP connect otherwise.
func checkerFor(inst *types.ServiceInstance) health.Checker {
	if url := inst.HealthCheckURL(); url != "" {
		return health.NewHTTPChecker(url)
	}
	return health.NewTCPChecker(inst.Address())
}
