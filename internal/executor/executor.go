package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Executor roles.
const (
	RoleFunction = "function"
	RoleQuery    = "query"
)

// Executor runs submitted tasks on at most a fixed number of worker
// goroutines. Tasks beyond capacity wait in a FIFO queue without holding a
// goroutine; workers start on demand and exit once the queue is empty.
type Executor struct {
	role    string
	workers int
	sem     *semaphore.Weighted
	wg      sync.WaitGroup

	mu    sync.Mutex
	queue []pending

	queued atomic.Int64
	active atomic.Int64
}

type pending struct {
	ctx  context.Context
	task func(context.Context)
}

// NewExecutor creates an executor with the given role label and worker count.
func NewExecutor(role string, workers int) *Executor {
	return &Executor{
		role:    role,
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
	}
}

// Submit queues task and returns immediately. task runs once a worker is
// free and receives ctx. If ctx has ended by the time task reaches a worker,
// task is dropped without running; callers that need to account for every
// task must watch ctx themselves.
func (e *Executor) Submit(ctx context.Context, task func(context.Context)) {
	e.wg.Add(1)
	e.queued.Add(1)
	queuedTasks.WithLabelValues(e.role).Inc()

	e.mu.Lock()
	e.queue = append(e.queue, pending{ctx: ctx, task: task})
	e.mu.Unlock()

	if e.sem.TryAcquire(1) {
		go e.work()
	}
}

// work drains the queue and releases its worker slot when the queue is empty.
func (e *Executor) work() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.sem.Release(1)
			e.mu.Unlock()
			return
		}
		p := e.queue[0]
		e.queue[0] = pending{}
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.run(p)
	}
}

func (e *Executor) run(p pending) {
	defer e.wg.Done()

	e.queued.Add(-1)
	queuedTasks.WithLabelValues(e.role).Dec()
	if p.ctx.Err() != nil {
		droppedTasks.WithLabelValues(e.role).Inc()
		return
	}

	e.active.Add(1)
	activeTasks.WithLabelValues(e.role).Inc()
	defer func() {
		e.active.Add(-1)
		activeTasks.WithLabelValues(e.role).Dec()
	}()

	p.task(p.ctx)
}

// Wait blocks until every task submitted so far has run or been dropped.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Role returns the executor's role label.
func (e *Executor) Role() string {
	return e.role
}

// Stats returns a point-in-time view of the executor.
func (e *Executor) Stats() Stats {
	return Stats{
		Role:    e.role,
		Workers: e.workers,
		Active:  e.active.Load(),
		Queued:  e.queued.Load(),
	}
}

// Stats describes an executor's load.
type Stats struct {
	Role    string `json:"role"`
	Workers int    `json:"workers"`
	Active  int64  `json:"active"`
	Queued  int64  `json:"queued"`
}
