package pool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsWork(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(time.Second)

	var ran atomic.Bool
	done := make(chan struct{})
	id, err := m.Submit(PoolIO, func() error {
		ran.Store(true)
		close(done)
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("work never ran")
	}
	assert.True(t, ran.Load())

	require.Eventually(t, func() bool {
		return m.Stats()[PoolIO].Completed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitUnknownPool(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(time.Second)

	_, err := m.Submit("gpu", func() error { return nil })
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestFailedWorkCounted(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(time.Second)

	_, err := m.Submit(PoolCPU, func() error { return fmt.Errorf("bad input") })
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Stats()[PoolCPU].Failed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPanicCountedAsFailure(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(time.Second)

	_, err := m.Submit(PoolCPU, func() error { panic("boom") })
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Stats()[PoolCPU].Failed == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Workers survive panics.
	done := make(chan struct{})
	_, err = m.Submit(PoolCPU, func() error { close(done); return nil })
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not recover after panic")
	}
}

func TestQueueFull(t *testing.T) {
	p := newPool("tiny", 1, 1)
	defer p.stop()

	block := make(chan struct{})
	defer close(block)

	// Occupy the single worker, then fill the one queue slot.
	require.NoError(t, p.submit("a", func() error { <-block; return nil }))
	require.Eventually(t, func() bool {
		return p.stats().Pending == 0
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, p.submit("b", func() error { return nil }))

	assert.ErrorIs(t, p.submit("c", func() error { return nil }), ErrPoolQueueFull)
}

func TestResizeReplacesPoolAndDrains(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(time.Second)

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		_, err := m.Submit(PoolIO, func() error {
			defer wg.Done()
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, m.Resize(PoolIO, 2, 10))

	// Work submitted before the resize still completes.
	wg.Wait()
	assert.Equal(t, int32(5), ran.Load())

	stats := m.Stats()[PoolIO]
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, 10, stats.QueueBound)
}

func TestResizeValidation(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(time.Second)

	assert.Error(t, m.Resize(PoolIO, 0, 10))
	assert.Error(t, m.Resize(PoolIO, 2, 0))
	assert.ErrorIs(t, m.Resize("gpu", 2, 10), ErrPoolNotFound)
}

func TestHealthRules(t *testing.T) {
	tests := []struct {
		name     string
		stats    Stats
		expected string
	}{
		{"idle", Stats{Workers: 4, QueueBound: 100}, "healthy"},
		{"queue nearly full", Stats{Workers: 100, QueueBound: 100, Pending: 95}, "degraded"},
		{"low success rate", Stats{Workers: 4, QueueBound: 100, Completed: 8, Failed: 4}, "degraded"},
		{"few failures ignored", Stats{Workers: 4, QueueBound: 100, Completed: 5, Failed: 3}, "healthy"},
		{"backlog over workers", Stats{Workers: 2, QueueBound: 100, Pending: 5}, "degraded"},
		{"busy but healthy", Stats{Workers: 4, QueueBound: 100, Pending: 6, Completed: 100, Failed: 1}, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, healthOf(tt.stats))
		})
	}
}

func TestManagerHasStandardPools(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(time.Second)

	stats := m.Stats()
	for _, name := range []string{PoolIO, PoolCPU, PoolProxy, PoolHealthCheck} {
		_, ok := stats[name]
		assert.True(t, ok, "missing pool %s", name)
	}
	assert.Equal(t, 50, stats[PoolProxy].Workers)
}
