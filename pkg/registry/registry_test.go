package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexops/gateway/pkg/events"
	"github.com/cortexops/gateway/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	return New(broker, time.Minute)
}

// hostPort splits an httptest server URL into host and port.
func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func TestRegisterAndGet(t *testing.T) {
	r := newTestRegistry(t)

	inst, err := r.Register(&types.RegistrationRequest{
		ServiceName: "agent-service",
		InstanceID:  "a1",
		Host:        "10.0.0.5",
		Port:        8001,
	})
	require.NoError(t, err)
	assert.Equal(t, types.InstanceHealthy, inst.Status)
	assert.Equal(t, 1, inst.Weight)

	got, err := r.Get("agent-service")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].InstanceID)
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name string
		req  types.RegistrationRequest
	}{
		{"missing service name", types.RegistrationRequest{InstanceID: "a1", Host: "h", Port: 80}},
		{"missing instance id", types.RegistrationRequest{ServiceName: "s", Host: "h", Port: 80}},
		{"missing host", types.RegistrationRequest{ServiceName: "s", InstanceID: "a1", Port: 80}},
		{"bad port", types.RegistrationRequest{ServiceName: "s", InstanceID: "a1", Host: "h", Port: 99999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(&tt.req)
			assert.Error(t, err)
		})
	}
}

func TestReRegisterPreservesConnections(t *testing.T) {
	r := newTestRegistry(t)

	req := &types.RegistrationRequest{ServiceName: "s", InstanceID: "a1", Host: "h", Port: 80}
	_, err := r.Register(req)
	require.NoError(t, err)

	r.IncConnections("s", "a1")
	r.IncConnections("s", "a1")

	inst, err := r.Register(req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inst.Connections)

	got, err := r.Get("s")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestGetAndListReturnDetachedCopies(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Register(&types.RegistrationRequest{ServiceName: "s", InstanceID: "a1", Host: "h", Port: 80})
	require.NoError(t, err)

	got, err := r.Get("s")
	require.NoError(t, err)
	got[0].Status = types.InstanceUnhealthy
	got[0].Connections = 99

	// The caller's copy is detached; internal state and selection are
	// unaffected.
	inst, err := r.Select("s", types.StrategyRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, "a1", inst.InstanceID)

	fresh, err := r.Get("s")
	require.NoError(t, err)
	assert.NotSame(t, got[0], fresh[0])
	assert.Equal(t, types.InstanceHealthy, fresh[0].Status)
	assert.Equal(t, int64(0), fresh[0].Connections)

	listed := r.List()["s"]
	require.Len(t, listed, 1)
	listed[0].Status = types.InstanceUnhealthy
	assert.Equal(t, types.InstanceHealthy, r.List()["s"][0].Status)
}

func TestLeastConnectionsTracksAdjustments(t *testing.T) {
	r := newTestRegistry(t)

	for _, id := range []string{"a1", "a2"} {
		_, err := r.Register(&types.RegistrationRequest{ServiceName: "s", InstanceID: id, Host: "h", Port: 80})
		require.NoError(t, err)
	}

	r.IncConnections("s", "a1")
	r.IncConnections("s", "a1")
	r.IncConnections("s", "a2")

	inst, err := r.Select("s", types.StrategyLeastConnections)
	require.NoError(t, err)
	assert.Equal(t, "a2", inst.InstanceID)

	// Releasing a1's connections must reach the balancer snapshot.
	r.DecConnections("s", "a1")
	r.DecConnections("s", "a1")
	inst, err = r.Select("s", types.StrategyLeastConnections)
	require.NoError(t, err)
	assert.Equal(t, "a1", inst.InstanceID)
}

func TestDeregisterLastInstanceRemovesService(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Register(&types.RegistrationRequest{ServiceName: "s", InstanceID: "a1", Host: "h", Port: 80})
	require.NoError(t, err)

	require.NoError(t, r.Deregister("s", "a1"))

	_, err = r.Get("s")
	assert.ErrorIs(t, err, ErrServiceNotFound)
	_, err = r.Select("s", types.StrategyRoundRobin)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestDeregisterUnknown(t *testing.T) {
	r := newTestRegistry(t)

	assert.Error(t, r.Deregister("missing", "a1"))

	_, err := r.Register(&types.RegistrationRequest{ServiceName: "s", InstanceID: "a1", Host: "h", Port: 80})
	require.NoError(t, err)
	assert.Error(t, r.Deregister("s", "other"))
}

func TestSelectSkipsUnhealthy(t *testing.T) {
	r := newTestRegistry(t)

	for _, id := range []string{"a1", "a2"} {
		_, err := r.Register(&types.RegistrationRequest{ServiceName: "s", InstanceID: id, Host: "h", Port: 80})
		require.NoError(t, err)
	}

	require.NoError(t, r.SetStatus("s", "a1", types.InstanceUnhealthy))
	for i := 0; i < 4; i++ {
		inst, err := r.Select("s", types.StrategyRoundRobin)
		require.NoError(t, err)
		assert.Equal(t, "a2", inst.InstanceID)
	}

	require.NoError(t, r.SetStatus("s", "a2", types.InstanceUnhealthy))
	_, err := r.Select("s", types.StrategyRoundRobin)
	assert.ErrorIs(t, err, ErrNoHealthyInstance)
}

func TestInitialProbeMarksUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	r := newTestRegistry(t)
	inst, err := r.Register(&types.RegistrationRequest{
		ServiceName:     "s",
		InstanceID:      "a1",
		Host:            host,
		Port:            port,
		HealthCheckPath: "/health",
	})
	require.NoError(t, err)
	assert.Equal(t, types.InstanceUnhealthy, inst.Status)

	_, err = r.Select("s", types.StrategyRoundRobin)
	assert.ErrorIs(t, err, ErrNoHealthyInstance)
}

func TestCheckAllTransitions(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if healthy.Load() {
			w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		w.Write([]byte(`{"status":"unhealthy"}`))
	}))
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	r := New(broker, time.Minute)
	_, err := r.Register(&types.RegistrationRequest{
		ServiceName:     "s",
		InstanceID:      "a1",
		Host:            host,
		Port:            port,
		HealthCheckPath: "/health",
	})
	require.NoError(t, err)

	// Healthy instance stays healthy.
	results := r.CheckAll(context.Background())
	assert.True(t, results["s/a1"])

	// Backend degrades; next cycle marks it unhealthy and removes it
	// from selection.
	healthy.Store(false)
	results = r.CheckAll(context.Background())
	assert.False(t, results["s/a1"])
	_, err = r.Select("s", types.StrategyRoundRobin)
	assert.ErrorIs(t, err, ErrNoHealthyInstance)

	// Recovery restores selection.
	healthy.Store(true)
	results = r.CheckAll(context.Background())
	assert.True(t, results["s/a1"])
	inst, err := r.Select("s", types.StrategyRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, "a1", inst.InstanceID)

	// The transition events arrived in order.
	assertEvent(t, sub, events.EventServiceRegistered)
	assertEvent(t, sub, events.EventHealthLost)
	assertEvent(t, sub, events.EventHealthRestored)
}

func TestCheckAllUsesProbePool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	r := newTestRegistry(t)
	var submitted atomic.Int32
	r.UseProbePool(func(fn func() error) error {
		submitted.Add(1)
		go fn()
		return nil
	})

	for _, id := range []string{"a1", "a2"} {
		_, err := r.Register(&types.RegistrationRequest{
			ServiceName:     "s",
			InstanceID:      id,
			Host:            host,
			Port:            port,
			HealthCheckPath: "/health",
		})
		require.NoError(t, err)
	}

	results := r.CheckAll(context.Background())
	require.Len(t, results, 2)
	assert.True(t, results["s/a1"])
	assert.True(t, results["s/a2"])
	assert.Equal(t, int32(2), submitted.Load())
}

func TestCheckAllProbesInlineWhenPoolFull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	r := newTestRegistry(t)
	r.UseProbePool(func(fn func() error) error {
		return fmt.Errorf("queue full")
	})

	_, err := r.Register(&types.RegistrationRequest{
		ServiceName:     "s",
		InstanceID:      "a1",
		Host:            host,
		Port:            port,
		HealthCheckPath: "/health",
	})
	require.NoError(t, err)

	results := r.CheckAll(context.Background())
	assert.True(t, results["s/a1"])
}

func assertEvent(t *testing.T, sub events.Subscriber, want events.EventType) {
	t.Helper()
	select {
	case ev := <-sub:
		assert.Equal(t, want, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event %s", want)
	}
}

func TestStats(t *testing.T) {
	r := newTestRegistry(t)

	for _, id := range []string{"a1", "a2"} {
		_, err := r.Register(&types.RegistrationRequest{ServiceName: "s", InstanceID: id, Host: "h", Port: 80})
		require.NoError(t, err)
	}
	_, err := r.Register(&types.RegistrationRequest{ServiceName: "other", InstanceID: "b1", Host: "h", Port: 81})
	require.NoError(t, err)
	require.NoError(t, r.SetStatus("s", "a1", types.InstanceUnhealthy))

	stats := r.Stats()
	assert.Equal(t, 2, stats.Services)
	assert.Equal(t, 3, stats.Instances)
	assert.Equal(t, 2, stats.HealthyInstances)
}
