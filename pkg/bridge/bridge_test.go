package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexops/gateway/pkg/apierror"
	"github.com/cortexops/gateway/pkg/events"
	"github.com/cortexops/gateway/pkg/registry"
	"github.com/cortexops/gateway/pkg/storage"
	"github.com/cortexops/gateway/pkg/types"
)

func newTestBridge(t *testing.T) (*Bridge, *registry.Registry, storage.Store) {
	t.Helper()

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	reg := registry.New(broker, time.Minute)
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(reg, store), reg, store
}

func request(service, instance string) *types.RegistrationRequest {
	return &types.RegistrationRequest{
		ServiceName: service,
		InstanceID:  instance,
		Host:        "10.0.0.5",
		Port:        8001,
	}
}

func TestRegisterAppliesAndMirrors(t *testing.T) {
	b, reg, store := newTestBridge(t)

	inst, err := b.Register(request("agent-service", "a1"))
	require.NoError(t, err)
	assert.Equal(t, types.InstanceHealthy, inst.Status)

	got, err := reg.Get("agent-service")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	mirrored, err := store.GetInstance("agent-service/a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", mirrored.InstanceID)
}

func TestRegisterRejectsInvalidPayload(t *testing.T) {
	b, _, _ := newTestBridge(t)

	_, err := b.Register(&types.RegistrationRequest{InstanceID: "a1"})
	require.Error(t, err)

	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.KindBadRequest, apiErr.Kind)
}

func TestDeregisterRemovesMirror(t *testing.T) {
	b, reg, store := newTestBridge(t)

	_, err := b.Register(request("agent-service", "a1"))
	require.NoError(t, err)

	require.NoError(t, b.Deregister("agent-service", "a1"))

	_, err = reg.Get("agent-service")
	assert.Error(t, err)
	_, err = store.GetInstance("agent-service/a1")
	assert.Error(t, err)
}

func TestReportStatus(t *testing.T) {
	b, reg, _ := newTestBridge(t)

	_, err := b.Register(request("agent-service", "a1"))
	require.NoError(t, err)

	require.NoError(t, b.ReportStatus("agent-service", "a1", types.InstanceUnhealthy))
	got, err := reg.Get("agent-service")
	require.NoError(t, err)
	assert.Equal(t, types.InstanceUnhealthy, got[0].Status)

	err = b.ReportStatus("agent-service", "a1", types.InstanceStatus("drunk"))
	require.Error(t, err)
	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.KindBadRequest, apiErr.Kind)

	assert.Error(t, b.ReportStatus("agent-service", "missing", types.InstanceHealthy))
}

func TestRestoreReregistersMirror(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	dir := t.TempDir()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)

	// Mirror built up in a previous run.
	first := New(registry.New(broker, time.Minute), store)
	_, err = first.Register(request("agent-service", "a1"))
	require.NoError(t, err)
	_, err = first.Register(request("model-service", "m1"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// A fresh process restores from the same file.
	reopened, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	reg := registry.New(broker, time.Minute)
	b := New(reg, reopened)
	require.NoError(t, b.Restore())

	services := reg.List()
	assert.Len(t, services, 2)
	assert.Len(t, services["agent-service"], 1)
}

func TestRestoreDropsBrokenEntries(t *testing.T) {
	b, reg, store := newTestBridge(t)

	// An entry the registry can never accept.
	require.NoError(t, store.SaveInstance(&types.ServiceInstance{
		ServiceName: "broken-service",
		InstanceID:  "x1",
		Host:        "h",
		Port:        -1,
	}))
	require.NoError(t, store.SaveInstance(&types.ServiceInstance{
		ServiceName: "good-service",
		InstanceID:  "g1",
		Host:        "h",
		Port:        8001,
	}))

	require.NoError(t, b.Restore())

	assert.Len(t, reg.List(), 1)
	_, err := store.GetInstance("broken-service/x1")
	assert.Error(t, err, "broken entry should be dropped from the mirror")
}

func TestReconcileDeregistersDrifted(t *testing.T) {
	b, reg, _ := newTestBridge(t)

	_, err := b.Register(request("agent-service", "a1"))
	require.NoError(t, err)

	// Registered behind the bridge's back, so never mirrored.
	_, err = reg.Register(request("rogue-service", "r1"))
	require.NoError(t, err)

	drifted, err := b.Reconcile()
	require.NoError(t, err)
	assert.Equal(t, 1, drifted)

	services := reg.List()
	assert.Len(t, services, 1)
	_, ok := services["agent-service"]
	assert.True(t, ok)
}

func TestReconcileRequiresStore(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	reg := registry.New(broker, time.Minute)

	b := New(reg, nil)
	_, err := b.Reconcile()
	assert.Error(t, err)
}

func TestNilStoreDisablesMirror(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	reg := registry.New(broker, time.Minute)

	b := New(reg, nil)
	_, err := b.Register(request("agent-service", "a1"))
	require.NoError(t, err)
	require.NoError(t, b.Restore())

	b.Start()
	b.Stop()
}
