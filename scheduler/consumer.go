package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacobsa/syncutil"

	"github.com/eligu/se-uom-vcs-sub001/core"
)

const (
	unitQueued int32 = iota
	unitStarted
	unitCanceled
)

// unit is one scheduled task. Its state moves from unitQueued to either
// unitStarted (the body runs) or unitCanceled (it never will); whoever wins
// that transition returns the unit's outstanding slot.
type unit struct {
	info  core.UnitInfo
	task  core.Task
	abort func()
	state atomic.Int32
}

// cancel moves u from queued to canceled. The caller that wins returns the
// outstanding slot and runs the unit's abort hook.
func (c *consumer) cancel(u *unit) bool {
	if !u.state.CompareAndSwap(unitQueued, unitCanceled) {
		return false
	}
	c.sched.observer.OnAborted(u.info)
	c.sched.release()
	if u.abort != nil {
		u.abort()
	}
	return true
}

// consumer owns one category: its FIFO of pending units and the count of
// units handed to the executor.
type consumer struct {
	sched  *TaskScheduler
	tt     core.TaskType
	inline bool

	mu syncutil.InvariantMutex

	// Signalled when a unit is queued, a slot is freed or shutdown starts.
	// Only the static consumer goroutine waits on it.
	cond *sync.Cond

	// GUARDED_BY(mu)
	pending *core.FIFOQueue[*unit]

	// Units handed to the executor and not yet finished.
	//
	// INVARIANT: 0 <= scheduled <= tt.MaxThreads()
	// INVARIANT: scheduled == len(submitted)
	//
	// GUARDED_BY(mu)
	scheduled int
	submitted map[*unit]struct{}

	// INVARIANT: shuttingDownNow implies shuttingDown
	//
	// GUARDED_BY(mu)
	shuttingDown    bool
	shuttingDownNow bool

	// GUARDED_BY(mu)
	failures []error
}

func newConsumer(s *TaskScheduler, tt core.TaskType, inline bool) *consumer {
	c := &consumer{
		sched:     s,
		tt:        tt,
		inline:    inline,
		pending:   core.NewFIFOQueue[*unit](),
		submitted: make(map[*unit]struct{}),
	}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *consumer) checkInvariants() {
	if c.scheduled < 0 || c.scheduled > c.tt.MaxThreads() {
		panic(fmt.Sprintf("category %s: scheduled count %d out of range", c.tt, c.scheduled))
	}
	if c.scheduled != len(c.submitted) {
		panic(fmt.Sprintf("category %s: scheduled %d but %d submitted", c.tt, c.scheduled, len(c.submitted)))
	}
	if c.shuttingDownNow && !c.shuttingDown {
		panic(fmt.Sprintf("category %s: shutting down now without shutting down", c.tt))
	}
}

// enqueue appends u to the pending FIFO. Inline consumers dispatch right away.
//
// LOCKS_EXCLUDED(c.mu)
func (c *consumer) enqueue(u *unit) error {
	c.mu.Lock()
	if c.shuttingDown {
		c.mu.Unlock()
		return core.StateErrorf("category %s is shutting down", c.tt)
	}
	c.pending.Push(u)
	depth := c.pending.Len()
	c.cond.Signal()
	c.mu.Unlock()

	c.sched.metrics.RecordQueueDepth(c.sched.id, c.tt.Name(), depth)
	if c.inline {
		c.scheduleRemaining()
	}
	return nil
}

// scheduleRemaining submits pending units while the category has free slots.
//
// LOCKS_EXCLUDED(c.mu)
func (c *consumer) scheduleRemaining() {
	c.mu.Lock()
	var batch []*unit
	for c.scheduled < c.tt.MaxThreads() && !c.shuttingDownNow {
		u, ok := c.pending.Pop()
		if !ok {
			break
		}
		c.markSubmittedLocked(u)
		batch = append(batch, u)
	}
	depth := c.pending.Len()
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	c.sched.metrics.RecordQueueDepth(c.sched.id, c.tt.Name(), depth)
	for _, u := range batch {
		c.submit(u)
	}
}

// consume is the static consumer loop: wait for a pending unit, wait for a
// free slot, submit. It returns once the category is drained after Shutdown,
// or immediately after ShutdownNow.
//
// LOCKS_EXCLUDED(c.mu)
func (c *consumer) consume() {
	for {
		u, ok := c.next()
		if !ok {
			c.sched.logger.Debug("consumer exited",
				core.F("scheduler", c.sched.id), core.F("category", c.tt.Name()))
			return
		}
		c.submit(u)
	}
}

// LOCKS_EXCLUDED(c.mu)
func (c *consumer) next() (*unit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.shuttingDownNow {
			return nil, false
		}
		if c.pending.IsEmpty() {
			if c.shuttingDown && c.scheduled == 0 {
				return nil, false
			}
			c.cond.Wait()
			continue
		}
		if c.scheduled >= c.tt.MaxThreads() {
			c.cond.Wait()
			continue
		}

		u, _ := c.pending.Pop()
		c.markSubmittedLocked(u)
		c.sched.metrics.RecordQueueDepth(c.sched.id, c.tt.Name(), c.pending.Len())
		return u, true
	}
}

// EXCLUSIVE_LOCKS_REQUIRED(c.mu)
func (c *consumer) markSubmittedLocked(u *unit) {
	c.scheduled++
	c.submitted[u] = struct{}{}
}

// submit hands u to the executor. A rejected unit is aborted and recorded
// as a failure of its category.
//
// LOCKS_EXCLUDED(c.mu)
func (c *consumer) submit(u *unit) {
	err := core.ExecuteAbortable(context.Background(), c.sched.exec, func(ctx context.Context) error {
		c.execute(ctx, u)
		return nil
	}, func() {
		c.dropped(u)
	})
	if err == nil {
		return
	}

	c.sched.metrics.RecordTaskRejected(c.sched.id, "executor")
	c.sched.logger.Warn("executor rejected unit",
		core.F("scheduler", c.sched.id), core.F("category", c.tt.Name()), core.F("error", err))
	if c.cancel(u) {
		c.addFailure(&core.ProcessingFailure{Source: c.sched.id, Member: c.tt.Name(), Err: err})
	}
	c.slotFreed(u)
}

// dropped runs when the executor discards u after accepting it.
//
// LOCKS_EXCLUDED(c.mu)
func (c *consumer) dropped(u *unit) {
	if c.cancel(u) {
		c.sched.metrics.RecordTaskRejected(c.sched.id, "dropped")
		c.sched.logger.Warn("executor dropped unit",
			core.F("scheduler", c.sched.id), core.F("category", c.tt.Name()), core.F("unit", u.info.ID))
	}
	c.slotFreed(u)
}

// execute runs on the executor.
func (c *consumer) execute(ctx context.Context, u *unit) {
	defer c.slotFreed(u)
	if !u.state.CompareAndSwap(unitQueued, unitStarted) {
		return
	}
	defer c.sched.release()

	s := c.sched
	s.observer.OnStarted(u.info)
	start := time.Now()
	failure := core.RunGuarded(ctx, s.id, c.tt.Name(), u.task)
	elapsed := time.Since(start)

	s.metrics.RecordTaskDuration(s.id, c.tt.Name(), elapsed)
	if failure != nil {
		c.addFailure(failure)
		s.metrics.RecordTaskFailure(s.id, c.tt.Name())
		if failure.Panic != nil {
			s.metrics.RecordTaskPanic(s.id, failure.Panic)
		}
		s.logger.Warn("task failed",
			core.F("scheduler", s.id), core.F("category", c.tt.Name()), core.F("unit", u.info.ID), core.F("error", failure))
		s.observer.OnCompleted(u.info, failure, elapsed)
		return
	}
	s.observer.OnCompleted(u.info, nil, elapsed)
}

// slotFreed gives u's category slot back and refills it.
//
// LOCKS_EXCLUDED(c.mu)
func (c *consumer) slotFreed(u *unit) {
	c.mu.Lock()
	if _, ok := c.submitted[u]; ok {
		delete(c.submitted, u)
		c.scheduled--
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	if c.inline {
		c.scheduleRemaining()
	}
}

// shutdown stops accepting units; queued and running units still finish.
//
// LOCKS_EXCLUDED(c.mu)
func (c *consumer) shutdown() {
	c.mu.Lock()
	c.shuttingDown = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// shutdownNow discards every unit that has not started, including units
// already handed to the executor, and returns how many were discarded.
//
// LOCKS_EXCLUDED(c.mu)
func (c *consumer) shutdownNow() int {
	c.mu.Lock()
	c.shuttingDown = true
	c.shuttingDownNow = true
	dropped := c.pending.Drain()
	for u := range c.submitted {
		dropped = append(dropped, u)
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	discarded := 0
	for _, u := range dropped {
		if c.cancel(u) {
			discarded++
		}
	}
	c.sched.metrics.RecordQueueDepth(c.sched.id, c.tt.Name(), 0)
	return discarded
}

// LOCKS_EXCLUDED(c.mu)
func (c *consumer) addFailure(err error) {
	c.mu.Lock()
	c.failures = append(c.failures, err)
	c.mu.Unlock()
}

// LOCKS_EXCLUDED(c.mu)
func (c *consumer) takeFailures() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := slices.Clone(c.failures)
	c.failures = nil
	return out
}

// LOCKS_EXCLUDED(c.mu)
func (c *consumer) stats() core.CategoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return core.CategoryStats{
		Name:       c.tt.Name(),
		MaxThreads: c.tt.MaxThreads(),
		Pending:    c.pending.Len(),
		Scheduled:  c.scheduled,
		Failures:   len(c.failures),
	}
}
