package processor

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/eligu/se-uom-vcs-sub001/core"
)

// Strategy decides how a Queue hands one entity to its running members.
// The methods are unexported; use Serial, Parallel or BoundedParallel.
type Strategy[E any] interface {
	Name() string

	// dispatch delivers entity to running and returns the members that must
	// leave the running set.
	dispatch(ctx context.Context, q *Queue[E], running []*member[E], entity E) ([]*member[E], error)

	// drain blocks until every unit submitted by this strategy has finished.
	drain(ctx context.Context) error

	inFlight() int
}

// ---------------------------------------------------------------------------
// Serial
// ---------------------------------------------------------------------------

type serial[E any] struct{}

// Serial runs every member on the calling goroutine in registration order.
func Serial[E any]() Strategy[E] { return serial[E]{} }

func (serial[E]) Name() string { return "serial" }

func (serial[E]) dispatch(ctx context.Context, q *Queue[E], running []*member[E], entity E) ([]*member[E], error) {
	var retire []*member[E]
	for _, m := range running {
		if !m.keepGoing.Load() {
			retire = append(retire, m)
			continue
		}
		if !q.deliver(ctx, q.newUnit(m), m, entity) {
			m.keepGoing.Store(false)
			retire = append(retire, m)
		}
	}
	return retire, nil
}

func (serial[E]) drain(context.Context) error { return nil }

func (serial[E]) inFlight() int { return 0 }

// ---------------------------------------------------------------------------
// Parallel
// ---------------------------------------------------------------------------

type parallel[E any] struct {
	exec core.Executor

	// slots is nil for the unbounded variant.
	slots *semaphore.Weighted
	name  string

	// Units submitted and not yet finished or aborted. idle is closed
	// whenever inflight drops to zero and replaced when it leaves zero, so
	// drain can be retried after an interrupted wait.
	mu       sync.Mutex
	inflight int
	idle     chan struct{}
}

// Parallel submits one unit per running member per entity to exec. Dispatch
// order follows registration order; completion order is up to exec.
func Parallel[E any](exec core.Executor) (Strategy[E], error) {
	if exec == nil {
		return nil, core.ConfigErrorf("parallel strategy: nil executor")
	}
	return &parallel[E]{exec: exec, name: "parallel"}, nil
}

// BoundedParallel is Parallel over pool with at most taskQueueSize units in
// flight. Process blocks while all slots are taken. taskQueueSize must be at
// least pool.WorkerCount().
func BoundedParallel[E any](pool core.ThreadPool, taskQueueSize int) (Strategy[E], error) {
	if pool == nil {
		return nil, core.ConfigErrorf("bounded parallel strategy: nil pool")
	}
	threads := pool.WorkerCount()
	if threads < 1 {
		return nil, core.ConfigErrorf("bounded parallel strategy: thread count %d < 1", threads)
	}
	if taskQueueSize < threads {
		return nil, core.ConfigErrorf("bounded parallel strategy: task queue size %d < thread count %d", taskQueueSize, threads)
	}
	return &parallel[E]{
		exec:  pool,
		slots: semaphore.NewWeighted(int64(taskQueueSize)),
		name:  "bounded-parallel",
	}, nil
}

func (p *parallel[E]) Name() string { return p.name }

func (p *parallel[E]) dispatch(ctx context.Context, q *Queue[E], running []*member[E], entity E) ([]*member[E], error) {
	var retire []*member[E]
	for _, m := range running {
		// The answer may come from a unit of an earlier round that has not been
		// observed yet; a member that already said "stop" gets nothing new.
		if !m.keepGoing.Load() {
			retire = append(retire, m)
			continue
		}

		if p.slots != nil {
			if err := p.slots.Acquire(ctx, 1); err != nil {
				return retire, core.Interrupted("bounded parallel admission", err)
			}
		}

		unit := q.newUnit(m)
		p.begin()

		// Exactly one of run or abort finishes the unit.
		var finished atomic.Bool
		run := func(runCtx context.Context) error {
			if !finished.CompareAndSwap(false, true) {
				return nil
			}
			defer p.done()
			if !m.keepGoing.Load() {
				q.observer.OnAborted(unit)
				return nil
			}
			if !q.deliver(runCtx, unit, m, entity) {
				m.keepGoing.Store(false)
			}
			return nil
		}
		abort := func() {
			if !finished.CompareAndSwap(false, true) {
				return
			}
			defer p.done()
			q.observer.OnAborted(unit)
			q.metrics.RecordTaskRejected(q.id, "discarded")
		}

		if err := core.ExecuteAbortable(ctx, p.exec, run, abort); err != nil {
			finished.Store(true)
			p.done()
			q.observer.OnAborted(unit)
			q.metrics.RecordTaskRejected(q.id, "executor")
			q.recordFailure(&core.ProcessingFailure{Source: q.id, Member: m.proc.ID(), Err: err})
			m.keepGoing.Store(false)
			retire = append(retire, m)
		}
	}
	return retire, nil
}

func (p *parallel[E]) begin() {
	p.mu.Lock()
	if p.inflight == 0 {
		p.idle = make(chan struct{})
	}
	p.inflight++
	p.mu.Unlock()
}

func (p *parallel[E]) done() {
	if p.slots != nil {
		p.slots.Release(1)
	}
	p.mu.Lock()
	p.inflight--
	if p.inflight == 0 {
		close(p.idle)
	}
	p.mu.Unlock()
}

func (p *parallel[E]) drain(ctx context.Context) error {
	p.mu.Lock()
	if p.inflight == 0 {
		p.mu.Unlock()
		return nil
	}
	idle := p.idle
	p.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return core.Interrupted("waiting for in-flight units", ctx.Err())
	}
}

func (p *parallel[E]) inFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}
