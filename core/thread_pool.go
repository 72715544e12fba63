package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// ThreadPool: Define task execution interface
// =============================================================================

// ThreadPool is the shared pool every queue and scheduler submits units to.
type ThreadPool interface {
	Executor

	Start(ctx context.Context)
	Stop()

	ID() string
	IsRunning() bool

	WorkerCount() int
	QueuedTaskCount() int // In queue
	ActiveTaskCount() int // Executing
}

// PoolConfig holds configuration options for GoroutineThreadPool.
// All handlers are optional; if not provided, default implementations will be used.
type PoolConfig struct {
	// PanicHandler is called when a unit panics on a worker. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics records panics and rejections. Defaults to NilMetrics.
	Metrics Metrics

	// Logger defaults to a logrus logger on stderr.
	Logger Logger
}

// poolUnit is one queued task and the hook that runs if it is dropped.
type poolUnit struct {
	task  Task
	abort func()
}

// GoroutineThreadPool manages a set of worker goroutines
// Responsible for pulling units from its FIFO queue and executing them
type GoroutineThreadPool struct {
	id      string
	workers int

	queue  *FIFOQueue[poolUnit]
	signal chan struct{}

	metricQueued atomic.Int32 // Waiting in queue
	metricActive atomic.Int32 // Executing in worker

	// submitMu makes the shuttingDown check and the push in Execute atomic
	// with respect to the flag flip and drain in Stop.
	submitMu     sync.Mutex
	shuttingDown atomic.Bool

	panicHandler PanicHandler
	metrics      Metrics
	logger       Logger

	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

var (
	_ ThreadPool        = (*GoroutineThreadPool)(nil)
	_ AbortableExecutor = (*GoroutineThreadPool)(nil)
)

// NewGoroutineThreadPool creates a new GoroutineThreadPool with default handlers.
func NewGoroutineThreadPool(id string, workers int) (*GoroutineThreadPool, error) {
	return NewGoroutineThreadPoolWithConfig(id, workers, nil)
}

// NewGoroutineThreadPoolWithConfig creates a new GoroutineThreadPool.
func NewGoroutineThreadPoolWithConfig(id string, workers int, config *PoolConfig) (*GoroutineThreadPool, error) {
	if workers < 1 {
		return nil, ConfigErrorf("pool %q: worker count must be at least 1, got %d", id, workers)
	}
	p := &GoroutineThreadPool{
		id:      id,
		workers: workers,
		queue:   NewFIFOQueue[poolUnit](),
		signal:  make(chan struct{}, workers*2),
	}

	if config != nil {
		p.panicHandler = config.PanicHandler
		p.metrics = config.Metrics
		p.logger = config.Logger
	}
	if p.logger == nil {
		p.logger = NewLogrusLogger(nil)
	}
	if p.panicHandler == nil {
		p.panicHandler = &DefaultPanicHandler{Logger: p.logger}
	}
	if p.metrics == nil {
		p.metrics = &NilMetrics{}
	}
	return p, nil
}

// Execute queues task for a worker. Units may be queued before Start; they
// run once workers exist. Execute fails after Stop.
func (p *GoroutineThreadPool) Execute(ctx context.Context, task Task) error {
	return p.ExecuteAbortable(ctx, task, nil)
}

// ExecuteAbortable is Execute with a hook that Stop calls instead of task
// when it drops the unit from the queue.
func (p *GoroutineThreadPool) ExecuteAbortable(ctx context.Context, task Task, abort func()) error {
	if task == nil {
		return ConfigErrorf("pool %q: nil task", p.id)
	}

	p.submitMu.Lock()
	if p.shuttingDown.Load() {
		p.submitMu.Unlock()
		p.metrics.RecordTaskRejected(p.id, "shutting down")
		return StateErrorf("pool %q is shutting down", p.id)
	}
	p.queue.Push(poolUnit{task: task, abort: abort})
	p.metricQueued.Add(1)
	p.submitMu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued
	}
	return nil
}

// Start starts all worker goroutines
func (p *GoroutineThreadPool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return // Already running
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for i := range p.workers {
		p.wg.Add(1)
		go p.workerLoop(i, p.ctx)
	}
	p.logger.Debug("pool started", F("pool", p.id), F("workers", p.workers))
}

// Stop rejects new units, drops queued ones and waits for running units.
// Every dropped unit's abort hook is called.
func (p *GoroutineThreadPool) Stop() {
	p.submitMu.Lock()
	p.shuttingDown.Store(true)
	drained := p.queue.Drain()
	p.submitMu.Unlock()

	dropped := len(drained)
	p.metricQueued.Add(-int32(dropped))
	for _, u := range drained {
		if u.abort != nil {
			u.abort()
		}
	}

	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return
	}
	p.runningMu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.Join()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()
	p.logger.Debug("pool stopped", F("pool", p.id), F("dropped", dropped))
}

// StopGraceful stops the thread pool gracefully, waiting for queued tasks to complete
// Returns error if timeout is exceeded before tasks complete
func (p *GoroutineThreadPool) StopGraceful(timeout time.Duration) error {
	p.submitMu.Lock()
	p.shuttingDown.Store(true)
	p.submitMu.Unlock()

	p.runningMu.RLock()
	running := p.running
	p.runningMu.RUnlock()
	if !running {
		// Nothing will ever run what is queued.
		p.Stop()
		return nil
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var err error
wait:
	for {
		select {
		case <-deadline:
			err = fmt.Errorf("pool %q: graceful stop timed out after %v with %d queued", p.id, timeout, p.QueuedTaskCount())
			break wait
		case <-ticker.C:
			if p.QueuedTaskCount() == 0 && p.ActiveTaskCount() == 0 {
				break wait
			}
		}
	}

	p.Stop()
	return err
}

// ID returns the ID of the thread pool
func (p *GoroutineThreadPool) ID() string {
	return p.id
}

// IsRunning returns whether the thread pool is running
func (p *GoroutineThreadPool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

// workerLoop is the main loop for each worker
func (p *GoroutineThreadPool) workerLoop(id int, ctx context.Context) {
	defer p.wg.Done()
	stopCh := ctx.Done()

	for {
		u, ok := p.getWork(stopCh)
		if !ok {
			return
		}
		p.run(ctx, id, u.task)
	}
}

func (p *GoroutineThreadPool) getWork(stopCh <-chan struct{}) (poolUnit, bool) {
	for {
		if u, ok := p.queue.Pop(); ok {
			p.metricQueued.Add(-1)
			return u, true
		}

		select {
		case <-p.signal:
			continue
		case <-stopCh:
			return poolUnit{}, false
		}
	}
}

func (p *GoroutineThreadPool) run(ctx context.Context, workerID int, task Task) {
	p.metricActive.Add(1)
	defer func() {
		p.metricActive.Add(-1)
		if r := recover(); r != nil {
			p.metrics.RecordTaskPanic(p.id, r)
			p.panicHandler.HandlePanic(ctx, p.id, workerID, r, debug.Stack())
		}
	}()

	if err := task(ctx); err != nil {
		p.logger.Debug("unit returned error", F("pool", p.id), F("worker", workerID), F("error", err))
	}
}

// Join waits for all worker goroutines to finish
func (p *GoroutineThreadPool) Join() {
	p.wg.Wait()
}

// WorkerCount returns the number of workers
func (p *GoroutineThreadPool) WorkerCount() int {
	return p.workers
}

func (p *GoroutineThreadPool) QueuedTaskCount() int {
	return int(p.metricQueued.Load())
}

func (p *GoroutineThreadPool) ActiveTaskCount() int {
	return int(p.metricActive.Load())
}

// Stats returns current observability data for this pool.
func (p *GoroutineThreadPool) Stats() PoolStats {
	return PoolStats{
		ID:      p.id,
		Workers: p.workers,
		Queued:  p.QueuedTaskCount(),
		Active:  p.ActiveTaskCount(),
		Running: p.IsRunning(),
	}
}
