package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/cortexops/gateway/pkg/types"
)

// ErrQueueFull is returned by Put when the total queue bound is reached.
var ErrQueueFull = fmt.Errorf("task queue is full")

// PriorityQueue holds pending tasks in four FIFO sub-queues, one per
// priority. Get drains the highest non-empty priority first; within a
// priority order is FIFO.
type PriorityQueue struct {
	mu     sync.Mutex
	queues [4][]*types.Task
	size   int
	bound  int
	notify chan struct{}
}

// NewPriorityQueue creates a queue with the given total bound.
func NewPriorityQueue(bound int) *PriorityQueue {
	if bound <= 0 {
		bound = 1000
	}
	return &PriorityQueue{
		bound:  bound,
		notify: make(chan struct{}, 1),
	}
}

// Put enqueues a task, returning ErrQueueFull at the bound.
func (q *PriorityQueue) Put(task *types.Task) error {
	q.mu.Lock()
	if q.size >= q.bound {
		q.mu.Unlock()
		return ErrQueueFull
	}
	p := task.Priority
	if p < types.PriorityUrgent || p > types.PriorityLow {
		p = types.PriorityNormal
	}
	q.queues[p] = append(q.queues[p], task)
	q.size++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Get returns the head of the highest non-empty priority, blocking up to
// timeout. Returns nil when nothing arrived in time.
func (q *PriorityQueue) Get(timeout time.Duration) *types.Task {
	deadline := time.Now().Add(timeout)
	for {
		if task := q.tryGet(); task != nil {
			return task
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
			return nil
		}
	}
}

func (q *PriorityQueue) tryGet() *types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := range q.queues {
		if len(q.queues[p]) > 0 {
			task := q.queues[p][0]
			q.queues[p] = q.queues[p][1:]
			q.size--
			return task
		}
	}
	return nil
}

// Len returns the total number of queued tasks.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
