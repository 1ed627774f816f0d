/*
Package scheduler provides asynchronous task execution for the gateway.

The scheduler accepts named task functions, queues them by priority, and
executes them on a fixed worker pool with per-task retry budgets,
timeouts, and panic isolation. Completed tasks remain queryable for a
retention window so clients can poll for results.

# Architecture

Tasks flow through a bounded four-level priority queue into a fixed set
of workers:

	┌──────────────────── TASK SCHEDULER ──────────────────────┐
	│                                                            │
	│  Submit(name, fn, opts...)                                │
	│       │                                                    │
	│       ▼                                                    │
	│  ┌────────────────────────────────────────────┐          │
	│  │          PriorityQueue (bounded)            │          │
	│  │  urgent ─ high ─ normal ─ low               │          │
	│  │  FIFO within each level                     │          │
	│  │  Put returns ErrQueueFull at the bound      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│       ┌─────────────┼─────────────┐                       │
	│       ▼             ▼             ▼                       │
	│  ┌─────────┐  ┌─────────┐  ┌─────────┐                   │
	│  │ worker 1│  │ worker 2│  │ worker N│                   │
	│  └────┬────┘  └────┬────┘  └────┬────┘                   │
	│       │            │            │                         │
	│       ▼            ▼            ▼                         │
	│  run attempt → retry with backoff → terminal state        │
	│  (panic recovery and per-attempt timeout around each run) │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Purge Loop                       │          │
	│  │  drops terminal tasks after retention       │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Task Lifecycle

A task moves through these states:

	pending → running → completed
	                  → failed      (retry budget exhausted, timeout,
	                                 or panic)
	pending → cancelled             (Cancel before a worker picks it up)

Retries re-enqueue the task at its original priority with exponential
backoff between attempts. Only pending tasks can be cancelled; a
running task runs to completion of its current attempt.

Timeouts use context deadlines: a task submitted WithTimeout has its
attempt context cancelled at the deadline and is marked failed with
error "timeout".

A panicking task function is recovered, counted as a failed attempt,
and never takes the worker down.

# Usage

Creating and starting a scheduler:

	sched := scheduler.New(8, 256)
	sched.Start()
	defer sched.Shutdown(5 * time.Second)

Submitting work:

	task, err := sched.Submit("reindex-models", func(ctx context.Context) (interface{}, error) {
		return reindex(ctx)
	},
		scheduler.WithPriority(types.PriorityHigh),
		scheduler.WithMaxRetries(3),
		scheduler.WithTimeout(30*time.Second),
	)
	if err != nil {
		// scheduler.ErrQueueFull under load
	}

Polling for the result:

	got, err := sched.Get(task.ID)
	if got.Status == types.TaskCompleted {
		use(got.Result)
	}

Cancelling a queued task:

	err := sched.Cancel(task.ID) // only while still pending

# Shutdown

Shutdown stops intake, lets workers finish their current attempt within
the grace period, and then returns. Tasks still pending after shutdown
stay in their last recorded state; the scheduler is not restartable.

# Integration Points

This package integrates with:

  - pkg/gateway: the system plane exposes submit/get/cancel/stats
  - pkg/metrics: queue depth and per-status counts are exported
  - pkg/types: Task, TaskPriority, and TaskStatus definitions
  - pkg/log: per-task logging via log.WithTaskID

# Design Patterns

Bounded Intake:
  - Submit fails fast with ErrQueueFull instead of blocking
  - Callers surface 503 to clients rather than queueing unbounded work

Worker Self-Reporting:
  - Each worker records its current task ID
  - Stats() reports busy workers without scanning the task table

# Troubleshooting

Tasks Stuck Pending:
  - Check Start() was called; Submit alone never executes anything
  - Check Stats().ByStatus for a backlog at higher priorities

Submit Returns ErrQueueFull:
  - The queue bound protects memory under burst load
  - Raise the bound or the worker count, or shed load upstream

# See Also

  - pkg/pool for the general-purpose worker pools
  - pkg/stream for delivering task progress to clients over SSE
*/
package scheduler
