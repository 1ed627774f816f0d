package bridge

import (
	"fmt"
	"time"

	"github.com/cortexops/gateway/pkg/apierror"
	"github.com/cortexops/gateway/pkg/log"
	"github.com/cortexops/gateway/pkg/registry"
	"github.com/cortexops/gateway/pkg/storage"
	"github.com/cortexops/gateway/pkg/types"
)

// reconcileInterval is how often the mirror and the registry are
// compared.
const reconcileInterval = time.Minute

// Bridge accepts backend registrations, applies them to the registry,
// and mirrors them to durable storage so the registry survives
// restarts. The mirror is the authoritative view during
// reconciliation.
type Bridge struct {
	registry *registry.Registry
	store    storage.Store
	submit   func(fn func() error) error

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a bridge. The store may be nil, which disables the
// mirror and reconciliation.
func New(reg *registry.Registry, store storage.Store) *Bridge {
	return &Bridge{
		registry: reg,
		store:    store,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetSubmitter routes periodic reconciliation work through a shared
// worker pool. Without one the loop runs reconciliation inline. Must
// be called before Start.
func (b *Bridge) SetSubmitter(submit func(fn func() error) error) {
	b.submit = submit
}

// Register validates the payload, registers the instance, and mirrors
// it.
func (b *Bridge) Register(req *types.RegistrationRequest) (*types.ServiceInstance, error) {
	if err := req.Validate(); err != nil {
		return nil, apierror.Wrap(apierror.KindBadRequest, "invalid registration", err)
	}

	inst, err := b.registry.Register(req)
	if err != nil {
		return nil, err
	}

	if b.store != nil {
		if err := b.store.SaveInstance(inst); err != nil {
			log.WithService(inst.ServiceName).Error().Err(err).Msg("failed to mirror instance")
		}
	}
	return inst, nil
}

// Deregister removes the instance from the registry and the mirror.
func (b *Bridge) Deregister(serviceName, instanceID string) error {
	if err := b.registry.Deregister(serviceName, instanceID); err != nil {
		return err
	}
	if b.store != nil {
		key := serviceName + "/" + instanceID
		if err := b.store.DeleteInstance(key); err != nil {
			log.WithService(serviceName).Error().Err(err).Msg("failed to remove mirrored instance")
		}
	}
	return nil
}

// ReportStatus propagates a backend-reported state change to the
// registry. The next health-check cycle confirms or reverts it.
func (b *Bridge) ReportStatus(serviceName, instanceID string, status types.InstanceStatus) error {
	switch status {
	case types.InstanceStarting, types.InstanceHealthy, types.InstanceUnhealthy,
		types.InstanceStopping, types.InstanceDown:
	default:
		return apierror.Newf(apierror.KindBadRequest, "unknown status %q", status)
	}
	return b.registry.SetStatus(serviceName, instanceID, status)
}

// Restore re-registers every mirrored instance. Called once at
// startup, before the health loop starts.
func (b *Bridge) Restore() error {
	if b.store == nil {
		return nil
	}

	instances, err := b.store.ListInstances()
	if err != nil {
		return fmt.Errorf("failed to load mirrored instances: %w", err)
	}

	restored := 0
	for _, inst := range instances {
		req := &types.RegistrationRequest{
			ServiceName:     inst.ServiceName,
			InstanceID:      inst.InstanceID,
			Host:            inst.Host,
			Port:            inst.Port,
			Endpoints:       inst.Endpoints,
			Metadata:        inst.Metadata,
			HealthCheckPath: inst.HealthCheckPath,
			Weight:          inst.Weight,
		}
		if _, err := b.registry.Register(req); err != nil {
			log.WithService(inst.ServiceName).Warn().Err(err).
				Str("instance", inst.InstanceID).
				Msg("mirrored instance failed to restore, dropping")
			if err := b.store.DeleteInstance(inst.Key()); err != nil {
				log.WithService(inst.ServiceName).Error().Err(err).Msg("failed to drop mirrored instance")
			}
			continue
		}
		restored++
	}

	log.WithComponent("bridge").Info().Int("count", restored).Msg("registry restored from mirror")
	return nil
}

// Start launches the reconciliation loop.
func (b *Bridge) Start() {
	if b.store == nil {
		close(b.doneCh)
		return
	}
	go func() {
		defer close(b.doneCh)
		ticker := time.NewTicker(reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.runReconcile()
			case <-b.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the reconciliation loop.
func (b *Bridge) Stop() {
	close(b.stopCh)
	<-b.doneCh
}

// runReconcile dispatches one reconciliation pass, preferring the
// shared pool when one is wired.
func (b *Bridge) runReconcile() {
	pass := func() error {
		_, err := b.Reconcile()
		return err
	}
	if b.submit != nil {
		if err := b.submit(pass); err == nil {
			return
		}
		// Pool queue full; run inline rather than skip the cycle.
	}
	if err := pass(); err != nil {
		log.WithComponent("bridge").Error().Err(err).Msg("reconcile failed")
	}
}

// Reconcile compares the registry against the mirror once and
// deregisters registry entries absent from it. The mirror is
// authoritative; entries registered through the bridge are always
// mirrored first. Returns the number of drifted instances removed.
func (b *Bridge) Reconcile() (int, error) {
	if b.store == nil {
		return 0, fmt.Errorf("reconciliation requires a mirror store")
	}
	instances, err := b.store.ListInstances()
	if err != nil {
		return 0, fmt.Errorf("failed to list mirror: %w", err)
	}

	mirrored := make(map[string]bool, len(instances))
	for _, inst := range instances {
		mirrored[inst.Key()] = true
	}

	drifted := 0
	for serviceName, insts := range b.registry.List() {
		for _, inst := range insts {
			if mirrored[inst.Key()] {
				continue
			}
			if err := b.registry.Deregister(serviceName, inst.InstanceID); err != nil {
				log.WithService(serviceName).Error().Err(err).
					Str("instance", inst.InstanceID).
					Msg("reconcile: failed to deregister drifted instance")
				continue
			}
			drifted++
		}
	}
	if drifted > 0 {
		log.WithComponent("bridge").Warn().Int("count", drifted).Msg("reconcile: drifted instances deregistered")
	}
	return drifted, nil
}
