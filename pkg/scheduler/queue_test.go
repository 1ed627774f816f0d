package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexops/gateway/pkg/types"
)

func task(name string, p types.TaskPriority) *types.Task {
	return &types.Task{ID: name, Name: name, Priority: p, Status: types.TaskPending}
}

func TestQueuePriorityOrder(t *testing.T) {
	q := NewPriorityQueue(10)

	require.NoError(t, q.Put(task("low", types.PriorityLow)))
	require.NoError(t, q.Put(task("normal", types.PriorityNormal)))
	require.NoError(t, q.Put(task("urgent", types.PriorityUrgent)))
	require.NoError(t, q.Put(task("high", types.PriorityHigh)))

	var order []string
	for i := 0; i < 4; i++ {
		got := q.Get(time.Second)
		require.NotNil(t, got)
		order = append(order, got.Name)
	}
	assert.Equal(t, []string{"urgent", "high", "normal", "low"}, order)
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := NewPriorityQueue(10)

	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, q.Put(task(name, types.PriorityNormal)))
	}

	assert.Equal(t, "first", q.Get(time.Second).Name)
	assert.Equal(t, "second", q.Get(time.Second).Name)
	assert.Equal(t, "third", q.Get(time.Second).Name)
}

func TestQueueBound(t *testing.T) {
	q := NewPriorityQueue(2)

	require.NoError(t, q.Put(task("a", types.PriorityNormal)))
	require.NoError(t, q.Put(task("b", types.PriorityUrgent)))
	assert.ErrorIs(t, q.Put(task("c", types.PriorityUrgent)), ErrQueueFull)

	// Draining frees capacity.
	require.NotNil(t, q.Get(time.Second))
	require.NoError(t, q.Put(task("c", types.PriorityUrgent)))
	assert.Equal(t, 2, q.Len())
}

func TestQueueGetTimesOutEmpty(t *testing.T) {
	q := NewPriorityQueue(10)

	start := time.Now()
	got := q.Get(50 * time.Millisecond)
	assert.Nil(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestQueueGetWakesOnPut(t *testing.T) {
	q := NewPriorityQueue(10)

	go func() {
		time.Sleep(30 * time.Millisecond)
		q.Put(task("late", types.PriorityNormal))
	}()

	got := q.Get(2 * time.Second)
	require.NotNil(t, got)
	assert.Equal(t, "late", got.Name)
}

func TestQueueUnknownPriorityFallsBackToNormal(t *testing.T) {
	q := NewPriorityQueue(10)

	require.NoError(t, q.Put(task("odd", types.TaskPriority(99))))
	require.NoError(t, q.Put(task("high", types.PriorityHigh)))

	// The out-of-range task queues at normal, so high drains first.
	assert.Equal(t, "high", q.Get(time.Second).Name)
	assert.Equal(t, "odd", q.Get(time.Second).Name)
}
