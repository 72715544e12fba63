package processor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/eligu/se-uom-vcs-sub001/core"
)

// Config holds configuration options for Queue.
// All fields are optional; if not provided, default implementations will be used.
type Config struct {
	// Logger defaults to a logrus logger on stderr.
	Logger core.Logger

	// Metrics defaults to core.NilMetrics.
	Metrics core.Metrics

	// Observer receives one callback set per delivery. Defaults to core.NopObserver.
	Observer core.Observer

	// IDGenerator names the queue when no id is given, and every delivery.
	// Defaults to core.UUIDGenerator.
	IDGenerator core.IDGenerator
}

// Queue is a composite Processor that delivers every entity to its running
// members using its Strategy.
//
// Lock order: lifecycleMu before mu. Process holds lifecycleMu for reading
// for the whole dispatch round, Start and Stop hold it exclusively, so a
// queue is never stopped underneath an in-progress round. Member lists are
// guarded by mu, which is only held for short structural updates. Add and
// Remove do not touch lifecycleMu and may be called from inside a member's
// Process.
type Queue[E any] struct {
	id       string
	strategy Strategy[E]

	logger   core.Logger
	metrics  core.Metrics
	observer core.Observer
	ids      core.IDGenerator

	lifecycleMu sync.RWMutex

	mu           sync.RWMutex
	started      bool
	registered   []*member[E]
	running      []*member[E]
	stoppedEarly []*member[E]

	failuresMu sync.Mutex
	failures   []error
}

var _ Processor[any] = (*Queue[any])(nil)

// NewQueue returns a stopped queue. An empty id is replaced by a generated one.
func NewQueue[E any](id string, strategy Strategy[E], config *Config) (*Queue[E], error) {
	if strategy == nil {
		return nil, core.ConfigErrorf("processor queue %q: nil strategy", id)
	}
	q := &Queue[E]{strategy: strategy}
	if config != nil {
		q.logger = config.Logger
		q.metrics = config.Metrics
		q.observer = config.Observer
		q.ids = config.IDGenerator
	}
	if q.logger == nil {
		q.logger = core.NewLogrusLogger(nil)
	}
	if q.metrics == nil {
		q.metrics = &core.NilMetrics{}
	}
	if q.observer == nil {
		q.observer = core.NopObserver{}
	}
	if q.ids == nil {
		q.ids = core.NewUUIDGenerator()
	}
	if id == "" {
		id = q.ids.NewID(strategy.Name() + "-queue")
	}
	q.id = id
	return q, nil
}

// NewSerialQueue returns a queue that dispatches on the caller's goroutine.
func NewSerialQueue[E any](id string, config *Config) (*Queue[E], error) {
	return NewQueue(id, Serial[E](), config)
}

// NewParallelQueue returns a queue that dispatches through exec.
func NewParallelQueue[E any](id string, exec core.Executor, config *Config) (*Queue[E], error) {
	strategy, err := Parallel[E](exec)
	if err != nil {
		return nil, err
	}
	return NewQueue(id, strategy, config)
}

// NewBoundedParallelQueue returns a queue that dispatches through pool with
// at most taskQueueSize units in flight.
func NewBoundedParallelQueue[E any](id string, pool core.ThreadPool, taskQueueSize int, config *Config) (*Queue[E], error) {
	strategy, err := BoundedParallel[E](pool, taskQueueSize)
	if err != nil {
		return nil, err
	}
	return NewQueue(id, strategy, config)
}

func (q *Queue[E]) ID() string { return q.id }

func (q *Queue[E]) IsStarted() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.started
}

// Add registers p. Adding an already registered processor is a no-op; adding
// the queue itself, a queue that contains this one, or a different processor
// with an id already in use is a core.ErrConfiguration error. When the queue
// is started p is started here and joins the running set only once its Start
// has returned. A processor that was removed but still waits for its deferred
// stop rejoins without a second Start.
func (q *Queue[E]) Add(ctx context.Context, p Processor[E]) error {
	if p == nil {
		return core.ConfigErrorf("processor queue %q: nil processor", q.id)
	}
	if sameProcessor(p, q) {
		return core.ConfigErrorf("processor queue %q: cannot add itself", q.id)
	}
	if c, ok := p.(processorContainer); ok && c.containsProcessor(q) {
		return core.ConfigErrorf("processor queue %q: adding %q would create a cycle", q.id, p.ID())
	}

	q.mu.Lock()
	if indexOf(q.registered, p) >= 0 {
		q.mu.Unlock()
		return nil
	}
	for _, m := range q.registered {
		if m.proc.ID() == p.ID() {
			q.mu.Unlock()
			return core.ConfigErrorf("processor queue %q: duplicate processor id %q", q.id, p.ID())
		}
	}

	m := newMember(p)
	q.registered = append(q.registered, m)
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	if i := indexOf(q.stoppedEarly, p); i >= 0 {
		// Still started: its deferred stop is canceled instead.
		q.stoppedEarly = without(q.stoppedEarly, i)
		q.running = append(q.running, m)
		q.mu.Unlock()
		q.logger.Debug("processor resumed", core.F("queue", q.id), core.F("processor", p.ID()))
		return nil
	}
	q.mu.Unlock()

	if err := p.Start(ctx); err != nil {
		q.mu.Lock()
		if i := slices.Index(q.registered, m); i >= 0 {
			q.registered = without(q.registered, i)
		}
		q.mu.Unlock()
		return err
	}

	q.mu.Lock()
	stopNow := false
	switch i := indexOf(q.registered, p); {
	case !q.started:
		// The queue stopped while p was starting and did not see it.
		stopNow = true
	case indexOf(q.running, p) >= 0:
		// A restart of the queue already picked p up.
	case i >= 0:
		q.running = append(q.running, q.registered[i])
	default:
		// Removed while starting.
		q.stoppedEarly = append(q.stoppedEarly, m)
	}
	q.mu.Unlock()

	if stopNow {
		return p.Stop(ctx)
	}
	q.logger.Debug("processor added", core.F("queue", q.id), core.F("processor", p.ID()))
	return nil
}

// Remove unregisters p and reports whether it was registered. When the queue
// is started, p stops receiving entities immediately but its Stop is deferred
// to the queue's own Stop.
func (q *Queue[E]) Remove(p Processor[E]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(p)
}

// RemoveAll unregisters every processor through the same path as Remove.
func (q *Queue[E]) RemoveAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.registered) > 0 {
		q.removeLocked(q.registered[0].proc)
	}
}

func (q *Queue[E]) removeLocked(p Processor[E]) bool {
	i := indexOf(q.registered, p)
	if i < 0 {
		return false
	}
	q.registered = without(q.registered, i)
	if !q.started {
		return true
	}
	if j := indexOf(q.running, p); j >= 0 {
		q.stoppedEarly = append(q.stoppedEarly, q.running[j])
		q.running = without(q.running, j)
	}
	return true
}

// GetProcessor finds a registered processor by id.
func (q *Queue[E]) GetProcessor(id string) (Processor[E], bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, m := range q.registered {
		if m.proc.ID() == id {
			return m.proc, true
		}
	}
	return nil, false
}

// ProcessorsCount returns the number of registered processors, including
// those that stopped early.
func (q *Queue[E]) ProcessorsCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.registered)
}

// RunningCount returns the number of members still receiving entities.
func (q *Queue[E]) RunningCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.running)
}

func (q *Queue[E]) containsProcessor(target any) bool {
	q.mu.RLock()
	members := slices.Clone(q.registered)
	q.mu.RUnlock()

	for _, m := range members {
		if sameProcessor(m.proc, target) {
			return true
		}
		if c, ok := m.proc.(processorContainer); ok && c.containsProcessor(target) {
			return true
		}
	}
	return false
}

// Start snapshots the registered processors into the running set and starts
// each of them. A member start failure stops the members started so far and
// is returned; the queue stays stopped.
func (q *Queue[E]) Start(ctx context.Context) error {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()

	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return nil
	}
	q.running = make([]*member[E], 0, len(q.registered))
	for i, m := range q.registered {
		// Fresh decorators: a restarted queue forgets earlier "stop" answers.
		fresh := newMember(m.proc)
		q.registered[i] = fresh
		q.running = append(q.running, fresh)
	}
	q.stoppedEarly = nil
	q.started = true
	toStart := slices.Clone(q.running)
	q.mu.Unlock()

	q.clearFailures()

	for i, m := range toStart {
		if err := m.proc.Start(ctx); err != nil {
			q.logger.Error("processor failed to start",
				core.F("queue", q.id), core.F("processor", m.proc.ID()), core.F("error", err))
			for _, prev := range toStart[:i] {
				_ = prev.proc.Stop(ctx)
			}
			q.mu.Lock()
			q.started = false
			q.running = nil
			q.mu.Unlock()
			return err
		}
	}

	q.logger.Debug("processor queue started",
		core.F("queue", q.id), core.F("strategy", q.strategy.Name()), core.F("members", len(toStart)))
	return nil
}

// Process delivers entity to every running member and returns false once no
// member is left running. Member failures are collected, not returned; the
// only errors are core.ErrState (queue not started) and core.ErrInterrupted
// (ctx ended while waiting for an admission slot).
func (q *Queue[E]) Process(ctx context.Context, entity E) (bool, error) {
	q.lifecycleMu.RLock()
	defer q.lifecycleMu.RUnlock()

	q.mu.RLock()
	if !q.started {
		q.mu.RUnlock()
		return false, core.StateErrorf("processor queue %q is not started", q.id)
	}
	running := slices.Clone(q.running)
	q.mu.RUnlock()

	if len(running) == 0 {
		return false, nil
	}

	retire, err := q.strategy.dispatch(ctx, q, running, entity)
	if len(retire) > 0 {
		q.retire(retire)
	}

	q.mu.RLock()
	more := len(q.running) > 0
	q.mu.RUnlock()
	return more, err
}

// retire moves members that signalled "stop" from running to stoppedEarly.
func (q *Queue[E]) retire(members []*member[E]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range members {
		i := slices.Index(q.running, m)
		if i < 0 {
			continue
		}
		q.running = without(q.running, i)
		q.stoppedEarly = append(q.stoppedEarly, m)
		q.logger.Debug("processor stopped early", core.F("queue", q.id), core.F("processor", m.proc.ID()))
	}
}

// Stop waits for this queue's in-flight units, then stops every member that
// was running or stopped early. Failures collected since Start and member
// stop failures are returned as one combined error. If ctx ends while waiting
// for in-flight units the queue stays started and a core.ErrInterrupted error
// is returned.
func (q *Queue[E]) Stop(ctx context.Context) error {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()

	if !q.IsStarted() {
		return nil
	}

	if err := q.strategy.drain(ctx); err != nil {
		return err
	}

	q.mu.Lock()
	q.started = false
	toStop := slices.Concat(q.stoppedEarly, q.running)
	q.running = nil
	q.stoppedEarly = nil
	q.mu.Unlock()

	failures := q.clearFailures()
	for _, m := range toStop {
		if err := m.proc.Stop(ctx); err != nil {
			failures = append(failures, &core.ProcessingFailure{Source: q.id, Member: m.proc.ID(), Err: err})
		}
	}

	err := core.CombineFailures(failures...)
	if err != nil {
		q.logger.Warn("processor queue stopped with failures",
			core.F("queue", q.id), core.F("failures", len(failures)), core.F("error", err))
	} else {
		q.logger.Debug("processor queue stopped", core.F("queue", q.id))
	}
	return err
}

// deliver runs one delivery of entity to m on the current goroutine and
// returns the member's answer. A failure counts as "stop".
func (q *Queue[E]) deliver(ctx context.Context, unit core.UnitInfo, m *member[E], entity E) bool {
	q.observer.OnStarted(unit)
	start := time.Now()

	keep := false
	failure := core.RunGuarded(ctx, q.id, m.proc.ID(), func(ctx context.Context) error {
		var err error
		keep, err = m.proc.Process(ctx, entity)
		return err
	})

	elapsed := time.Since(start)
	q.metrics.RecordTaskDuration(q.id, m.proc.ID(), elapsed)
	if failure != nil {
		q.recordFailure(failure)
		q.observer.OnCompleted(unit, failure, elapsed)
		return false
	}
	q.observer.OnCompleted(unit, nil, elapsed)
	return keep
}

func (q *Queue[E]) newUnit(m *member[E]) core.UnitInfo {
	u := core.UnitInfo{ID: q.ids.NewID(q.id), Source: q.id, Category: m.proc.ID()}
	q.observer.OnSubmitted(u)
	return u
}

func (q *Queue[E]) recordFailure(f *core.ProcessingFailure) {
	q.failuresMu.Lock()
	q.failures = append(q.failures, f)
	q.failuresMu.Unlock()

	q.metrics.RecordTaskFailure(q.id, f.Member)
	if f.Panic != nil {
		q.metrics.RecordTaskPanic(q.id, f.Panic)
	}
	q.logger.Warn("processor failed", core.F("queue", q.id), core.F("processor", f.Member), core.F("error", f))
}

func (q *Queue[E]) clearFailures() []error {
	q.failuresMu.Lock()
	defer q.failuresMu.Unlock()
	out := q.failures
	q.failures = nil
	return out
}

// Stats returns current observability data for this queue.
func (q *Queue[E]) Stats() core.QueueStats {
	q.mu.RLock()
	stats := core.QueueStats{
		ID:           q.id,
		Strategy:     q.strategy.Name(),
		Started:      q.started,
		Registered:   len(q.registered),
		Running:      len(q.running),
		StoppedEarly: len(q.stoppedEarly),
		InFlight:     q.strategy.inFlight(),
	}
	q.mu.RUnlock()

	q.failuresMu.Lock()
	stats.Failures = len(q.failures)
	q.failuresMu.Unlock()
	return stats
}
