// Package scheduler runs heterogeneous background work on a shared executor,
// partitioned by core.TaskType.
//
// Every category has its own FIFO of pending units and a cap on how many of
// them may be submitted to the executor at once. On top of that a scheduler
// may cap the number of outstanding units across all categories; Schedule
// blocks while that cap is reached.
//
// Two variants exist:
//
//   - NewStaticScheduler gives every category a dedicated consumer goroutine
//     that moves pending units into the executor.
//   - NewBoundedScheduler has no consumer goroutines; Schedule and unit
//     completion drive dispatch inline.
//
// A unit must not call Schedule on its own scheduler while the global cap is
// reached: the unit holds one of the outstanding slots it is waiting for, and
// the call can block forever.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacobsa/syncutil"

	"github.com/eligu/se-uom-vcs-sub001/core"
)

const (
	kindStatic  = "static"
	kindBounded = "bounded"

	// DefaultRecheckInterval bounds how long a blocked Schedule call sleeps
	// before it looks at the shutdown flag again.
	DefaultRecheckInterval = 250 * time.Millisecond
)

// Scheduler is implemented by TaskScheduler.
type Scheduler interface {
	// Schedule queues task under tt. It blocks while the global outstanding
	// cap is reached.
	Schedule(ctx context.Context, task core.Task, tt core.TaskType) error
	// ScheduleAbortable is Schedule with a hook called instead of task when
	// an accepted unit is discarded before it starts.
	ScheduleAbortable(ctx context.Context, task core.Task, tt core.TaskType, abort func()) error
	ScheduleTyped(ctx context.Context, task core.TypedTask) error
	CanSchedule(tt core.TaskType) bool

	Shutdown(ctx context.Context) error
	ShutdownNow(ctx context.Context) error
	IsShutdown() bool
	IsTerminated() bool
	AwaitTermination(ctx context.Context) error

	Stats() core.SchedulerStats
}

// Config holds configuration options for TaskScheduler.
// All fields are optional; if not provided, default implementations will be used.
type Config struct {
	// ID names the scheduler in logs, metrics and failures. Generated when empty.
	ID string

	// MaxOutstanding caps queued plus running units across all categories.
	// 0 means unbounded.
	MaxOutstanding int

	// RecheckInterval is how often a Schedule call blocked on MaxOutstanding
	// re-checks for shutdown. Defaults to DefaultRecheckInterval.
	RecheckInterval time.Duration

	Logger      core.Logger
	Metrics     core.Metrics
	Observer    core.Observer
	IDGenerator core.IDGenerator
}

// TaskScheduler routes units to per-category consumers. Create it with
// NewStaticScheduler or NewBoundedScheduler.
type TaskScheduler struct {
	id   string
	kind string
	exec core.Executor

	logger   core.Logger
	metrics  core.Metrics
	observer core.Observer
	ids      core.IDGenerator

	// Immutable after construction.
	consumers map[core.TaskType]*consumer
	order     []*consumer

	admission      *admission
	maxOutstanding int
	outstanding    atomic.Int64

	// shutdownMu serializes Shutdown and ShutdownNow.
	shutdownMu           sync.Mutex
	shutdownRequested    atomic.Bool
	shutdownNowRequested atomic.Bool
	runningConsumers     atomic.Int32
	consumersDone        chan struct{}
	terminated           chan struct{}
	terminateOnce        sync.Once
}

var _ Scheduler = (*TaskScheduler)(nil)

// NewStaticScheduler starts one consumer goroutine per category in types.
func NewStaticScheduler(exec core.Executor, types []core.TaskType, config *Config) (*TaskScheduler, error) {
	s, err := newTaskScheduler(kindStatic, exec, types, config)
	if err != nil {
		return nil, err
	}

	s.runningConsumers.Store(int32(len(s.order)))
	bundle := syncutil.NewBundle(context.Background())
	for _, c := range s.order {
		bundle.Add(func(ctx context.Context) error {
			defer s.consumerExited()
			c.consume()
			return nil
		})
	}
	go func() {
		_ = bundle.Join()
		close(s.consumersDone)
	}()

	s.logger.Info("scheduler started",
		core.F("scheduler", s.id), core.F("type", s.kind), core.F("categories", len(s.order)))
	return s, nil
}

// NewBoundedScheduler dispatches inline from Schedule and unit completion.
func NewBoundedScheduler(exec core.Executor, types []core.TaskType, config *Config) (*TaskScheduler, error) {
	s, err := newTaskScheduler(kindBounded, exec, types, config)
	if err != nil {
		return nil, err
	}
	close(s.consumersDone)

	s.logger.Info("scheduler started",
		core.F("scheduler", s.id), core.F("type", s.kind), core.F("categories", len(s.order)))
	return s, nil
}

func newTaskScheduler(kind string, exec core.Executor, types []core.TaskType, config *Config) (*TaskScheduler, error) {
	if exec == nil {
		return nil, core.ConfigErrorf("%s scheduler: nil executor", kind)
	}
	if len(types) == 0 {
		return nil, core.ConfigErrorf("%s scheduler: no task types", kind)
	}

	s := &TaskScheduler{
		kind:          kind,
		exec:          exec,
		consumers:     make(map[core.TaskType]*consumer, len(types)),
		consumersDone: make(chan struct{}),
		terminated:    make(chan struct{}),
	}

	recheck := DefaultRecheckInterval
	if config != nil {
		if config.MaxOutstanding < 0 {
			return nil, core.ConfigErrorf("%s scheduler: max outstanding must not be negative, got %d", kind, config.MaxOutstanding)
		}
		s.id = config.ID
		s.maxOutstanding = config.MaxOutstanding
		s.logger = config.Logger
		s.metrics = config.Metrics
		s.observer = config.Observer
		s.ids = config.IDGenerator
		if config.RecheckInterval > 0 {
			recheck = config.RecheckInterval
		}
	}
	if s.logger == nil {
		s.logger = core.NewLogrusLogger(nil)
	}
	if s.metrics == nil {
		s.metrics = &core.NilMetrics{}
	}
	if s.observer == nil {
		s.observer = core.NopObserver{}
	}
	if s.ids == nil {
		s.ids = core.NewUUIDGenerator()
	}
	if s.id == "" {
		s.id = s.ids.NewID(kind + "-scheduler")
	}
	if s.maxOutstanding > 0 {
		s.admission = newAdmission(s.maxOutstanding, recheck)
	}

	for _, tt := range types {
		if tt.IsZero() {
			return nil, core.ConfigErrorf("scheduler %q: zero task type", s.id)
		}
		if _, dup := s.consumers[tt]; dup {
			return nil, core.ConfigErrorf("scheduler %q: duplicate task type %s", s.id, tt)
		}
		c := newConsumer(s, tt, kind == kindBounded)
		s.consumers[tt] = c
		s.order = append(s.order, c)
	}
	return s, nil
}

func (s *TaskScheduler) ID() string { return s.id }

// CanSchedule reports whether tt is registered and the scheduler still accepts work.
func (s *TaskScheduler) CanSchedule(tt core.TaskType) bool {
	_, ok := s.consumers[tt]
	return ok && !s.shutdownRequested.Load()
}

// ScheduleTyped schedules task under its own category.
func (s *TaskScheduler) ScheduleTyped(ctx context.Context, task core.TypedTask) error {
	if task == nil {
		return core.ConfigErrorf("scheduler %q: nil task", s.id)
	}
	return s.Schedule(ctx, task.Run, task.TaskType())
}

// Schedule queues task under tt. It fails with core.ErrConfiguration for an
// unknown category, core.ErrState once shutdown was requested (including
// while blocked) and core.ErrInterrupted when ctx ends while blocked on the
// outstanding cap.
func (s *TaskScheduler) Schedule(ctx context.Context, task core.Task, tt core.TaskType) error {
	return s.ScheduleAbortable(ctx, task, tt, nil)
}

// ScheduleAbortable is Schedule with a discard hook. abort runs at most once,
// only for a unit that was accepted and then canceled by ShutdownNow or
// dropped by the executor; it never runs when this call returns an error.
func (s *TaskScheduler) ScheduleAbortable(ctx context.Context, task core.Task, tt core.TaskType, abort func()) error {
	if task == nil {
		return core.ConfigErrorf("scheduler %q: nil task", s.id)
	}
	c, ok := s.consumers[tt]
	if !ok {
		s.metrics.RecordTaskRejected(s.id, "unknown task type")
		return core.ConfigErrorf("scheduler %q: unknown task type %s", s.id, tt)
	}
	if s.shutdownRequested.Load() {
		return s.rejectShutdown(tt)
	}

	if err := s.admission.acquire(ctx, s.shutdownRequested.Load); err != nil {
		if !isInterrupted(err) {
			return s.rejectShutdown(tt)
		}
		return err
	}
	s.outstanding.Add(1)

	u := &unit{
		info:  core.UnitInfo{ID: s.ids.NewID(tt.Name()), Source: s.id, Category: tt.Name()},
		task:  task,
		abort: abort,
	}
	s.observer.OnSubmitted(u.info)

	if err := c.enqueue(u); err != nil {
		u.state.Store(unitCanceled)
		s.observer.OnAborted(u.info)
		s.release()
		return s.rejectShutdown(tt)
	}
	return nil
}

func (s *TaskScheduler) rejectShutdown(tt core.TaskType) error {
	s.metrics.RecordTaskRejected(s.id, "shut down")
	return core.StateErrorf("scheduler %q is shut down, cannot schedule %s", s.id, tt)
}

// release returns one outstanding slot.
func (s *TaskScheduler) release() {
	s.outstanding.Add(-1)
	s.admission.release()
	s.maybeTerminate()
}

func (s *TaskScheduler) consumerExited() {
	s.runningConsumers.Add(-1)
	s.maybeTerminate()
}

func (s *TaskScheduler) maybeTerminate() {
	if s.IsTerminated() {
		s.terminateOnce.Do(func() {
			close(s.terminated)
			s.logger.Debug("scheduler terminated", core.F("scheduler", s.id))
		})
	}
}

// Shutdown stops accepting work and waits until every queued and running unit
// has finished. Failures collected from task bodies are returned combined.
// If ctx ends first a core.ErrInterrupted error is returned; the shutdown
// still proceeds in the background and may be awaited again.
func (s *TaskScheduler) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	if s.shutdownRequested.CompareAndSwap(false, true) {
		s.logger.Info("scheduler shutting down", core.F("scheduler", s.id), core.F("outstanding", s.outstanding.Load()))
		for _, c := range s.order {
			c.shutdown()
		}
		s.maybeTerminate()
	}
	s.shutdownMu.Unlock()

	if err := s.AwaitTermination(ctx); err != nil {
		return err
	}
	return s.collectFailures()
}

// ShutdownNow stops accepting work, discards every unit that has not started
// and waits for the consumers to exit. Running units are not interrupted.
// Failures collected so far are returned combined.
func (s *TaskScheduler) ShutdownNow(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.shutdownRequested.Store(true)
	discarded := 0
	if s.shutdownNowRequested.CompareAndSwap(false, true) {
		for _, c := range s.order {
			discarded += c.shutdownNow()
		}
		s.logger.Info("scheduler shut down now",
			core.F("scheduler", s.id), core.F("discarded", discarded), core.F("running", s.outstanding.Load()))
	}
	s.maybeTerminate()
	s.shutdownMu.Unlock()

	select {
	case <-s.consumersDone:
	case <-ctx.Done():
		return core.Interrupted("waiting for consumers to exit", ctx.Err())
	}
	return s.collectFailures()
}

func (s *TaskScheduler) collectFailures() error {
	var failures []error
	for _, c := range s.order {
		failures = append(failures, c.takeFailures()...)
	}
	err := core.CombineFailures(failures...)
	if err != nil {
		s.logger.Warn("scheduler finished with failures",
			core.F("scheduler", s.id), core.F("failures", len(failures)), core.F("error", err))
	}
	return err
}

// IsShutdown reports whether Shutdown or ShutdownNow was called.
func (s *TaskScheduler) IsShutdown() bool { return s.shutdownRequested.Load() }

// IsTerminated reports whether shutdown was requested, no unit is outstanding
// and every consumer goroutine has exited.
func (s *TaskScheduler) IsTerminated() bool {
	return s.shutdownRequested.Load() && s.outstanding.Load() == 0 && s.runningConsumers.Load() == 0
}

// AwaitTermination blocks until IsTerminated is true or ctx ends.
func (s *TaskScheduler) AwaitTermination(ctx context.Context) error {
	select {
	case <-s.terminated:
		return nil
	case <-ctx.Done():
		return core.Interrupted("waiting for termination", ctx.Err())
	}
}

// Stats returns current observability data for this scheduler.
func (s *TaskScheduler) Stats() core.SchedulerStats {
	stats := core.SchedulerStats{
		ID:               s.id,
		Type:             s.kind,
		Outstanding:      int(s.outstanding.Load()),
		MaxOutstanding:   s.maxOutstanding,
		RunningConsumers: int(s.runningConsumers.Load()),
		Shutdown:         s.IsShutdown(),
		Terminated:       s.IsTerminated(),
		Categories:       make([]core.CategoryStats, 0, len(s.order)),
	}
	for _, c := range s.order {
		stats.Categories = append(stats.Categories, c.stats())
	}
	return stats
}
