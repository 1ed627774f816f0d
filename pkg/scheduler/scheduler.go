package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexops/gateway/pkg/log"
	"github.com/cortexops/gateway/pkg/types"
)

const (
	// dequeueWait bounds how long an idle worker blocks on the queue
	// before re-checking for shutdown.
	dequeueWait = 200 * time.Millisecond

	// terminalRetention is how long finished tasks stay queryable.
	terminalRetention = 24 * time.Hour
)

// Option customises a submitted task
type Option func(*types.Task)

// WithPriority sets the task priority.
func WithPriority(p types.TaskPriority) Option {
	return func(t *types.Task) { t.Priority = p }
}

// WithMaxRetries sets the retry budget.
func WithMaxRetries(n int) Option {
	return func(t *types.Task) { t.MaxRetries = n }
}

// WithTimeout sets the per-attempt execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *types.Task) { t.Timeout = d }
}

// Scheduler runs background tasks on a fixed worker pool over a bounded
// priority queue.
type Scheduler struct {
	queue   *PriorityQueue
	workers []*worker

	mu    sync.Mutex
	tasks map[string]*types.Task

	stopCh  chan struct{}
	purgeCh chan struct{}
	wg      sync.WaitGroup
}

// worker is one executor loop; current exposes the running task id.
type worker struct {
	id      int
	mu      sync.Mutex
	current string
}

func (w *worker) setCurrent(id string) {
	w.mu.Lock()
	w.current = id
	w.mu.Unlock()
}

// Current returns the running task id, or "".
func (w *worker) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// New creates a scheduler with the given pool size and queue bound.
func New(poolSize, queueBound int) *Scheduler {
	if poolSize <= 0 {
		poolSize = 10
	}
	s := &Scheduler{
		queue:   NewPriorityQueue(queueBound),
		tasks:   make(map[string]*types.Task),
		stopCh:  make(chan struct{}),
		purgeCh: make(chan struct{}),
	}
	for i := 0; i < poolSize; i++ {
		s.workers = append(s.workers, &worker{id: i})
	}
	return s
}

// Start launches the worker pool and the terminal-task purge loop.
func (s *Scheduler) Start() {
	for _, w := range s.workers {
		s.wg.Add(1)
		go s.runWorker(w)
	}
	go s.purgeLoop()
	log.WithComponent("scheduler").Info().Int("workers", len(s.workers)).Msg("scheduler started")
}

// Submit enqueues a new task and returns it in pending state.
func (s *Scheduler) Submit(name string, fn types.TaskFunc, opts ...Option) (*types.Task, error) {
	task := &types.Task{
		ID:         uuid.New().String(),
		Name:       name,
		Fn:         fn,
		Priority:   types.PriorityNormal,
		Status:     types.TaskPending,
		CreatedAt:  time.Now(),
		MaxRetries: 0,
	}
	for _, opt := range opts {
		opt(task)
	}

	// Snapshot before enqueueing: once the task is on the queue a worker
	// may start mutating it under s.mu.
	snap := *task

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	if err := s.queue.Put(task); err != nil {
		s.mu.Lock()
		delete(s.tasks, task.ID)
		s.mu.Unlock()
		return nil, err
	}
	return &snap, nil
}

// Get returns a value copy of a task. Workers keep mutating the live
// task under s.mu, so callers must never see the shared pointer.
func (s *Scheduler) Get(taskID string) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	snap := *task
	return &snap, nil
}

// Cancel marks a pending task cancelled. Running tasks are never
// interrupted.
func (s *Scheduler) Cancel(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task not found: %s", taskID)
	}
	if task.Status != types.TaskPending {
		return fmt.Errorf("task %s is %s, only pending tasks can be cancelled", taskID, task.Status)
	}
	task.Status = types.TaskCancelled
	task.CompletedAt = time.Now()
	return nil
}

// Stats summarises scheduler state
type Stats struct {
	Workers  int            `json:"workers"`
	Queued   int            `json:"queued"`
	ByStatus map[string]int `json:"by_status"`
	Running  []string       `json:"running_tasks"`
}

// Stats returns the current counts.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	byStatus := make(map[string]int)
	for _, task := range s.tasks {
		byStatus[string(task.Status)]++
	}
	s.mu.Unlock()

	var running []string
	for _, w := range s.workers {
		if id := w.Current(); id != "" {
			running = append(running, id)
		}
	}

	return Stats{
		Workers:  len(s.workers),
		Queued:   s.queue.Len(),
		ByStatus: byStatus,
		Running:  running,
	}
}

// Shutdown signals workers and joins them within the grace period.
// Workers that fail to stop in time are logged and abandoned.
func (s *Scheduler) Shutdown(grace time.Duration) {
	close(s.stopCh)
	close(s.purgeCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.WithComponent("scheduler").Info().Msg("scheduler stopped")
	case <-time.After(grace):
		log.WithComponent("scheduler").Warn().Msg("scheduler shutdown grace period expired, workers orphaned")
	}
}

func (s *Scheduler) runWorker(w *worker) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		task := s.queue.Get(dequeueWait)
		if task == nil {
			continue
		}
		s.execute(w, task)
	}
}

// execute runs one task attempt and records the terminal state or
// re-enqueues for retry.
func (s *Scheduler) execute(w *worker, task *types.Task) {
	s.mu.Lock()
	if task.Status != types.TaskPending {
		// Cancelled while queued.
		s.mu.Unlock()
		return
	}
	task.Status = types.TaskRunning
	task.StartedAt = time.Now()
	s.mu.Unlock()

	w.setCurrent(task.ID)
	defer w.setCurrent("")

	ctx := context.Background()
	cancel := func() {}
	if task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
	}

	result, err := s.runAttempt(ctx, task)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		task.Status = types.TaskCompleted
		task.Result = result
		task.CompletedAt = time.Now()
		return
	}

	errMsg := err.Error()
	if ctx.Err() == context.DeadlineExceeded {
		errMsg = "timeout"
	}
	task.Error = errMsg

	if task.RetryCount < task.MaxRetries {
		task.RetryCount++
		task.Status = types.TaskPending
		task.StartedAt = time.Time{}
		if qErr := s.queue.Put(task); qErr != nil {
			task.Status = types.TaskFailed
			task.CompletedAt = time.Now()
			log.WithTaskID(task.ID).Error().Err(qErr).Msg("retry re-enqueue failed")
			return
		}
		log.WithTaskID(task.ID).Warn().
			Int("retry", task.RetryCount).
			Int("max_retries", task.MaxRetries).
			Str("error", errMsg).
			Msg("task retrying")
		return
	}

	task.Status = types.TaskFailed
	task.CompletedAt = time.Now()
	log.WithTaskID(task.ID).Error().Str("error", errMsg).Msg("task failed")
}

// runAttempt invokes the callable, converting panics into errors so one
// bad task cannot take down a worker.
func (s *Scheduler) runAttempt(ctx context.Context, task *types.Task) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	type outcome struct {
		result interface{}
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		res, runErr := task.Fn(ctx)
		ch <- outcome{result: res, err: runErr}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout")
	}
}

// purgeLoop removes terminal tasks older than the retention window.
func (s *Scheduler) purgeLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.purge()
		case <-s.purgeCh:
			return
		}
	}
}

func (s *Scheduler) purge() {
	cutoff := time.Now().Add(-terminalRetention)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, task := range s.tasks {
		if task.Status.Terminal() && !task.CompletedAt.IsZero() && task.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
		}
	}
}
