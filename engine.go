package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/eligu/se-uom-vcs-sub001/config"
	"github.com/eligu/se-uom-vcs-sub001/core"
	promexp "github.com/eligu/se-uom-vcs-sub001/observability/prometheus"
	"github.com/eligu/se-uom-vcs-sub001/observability/tracing"
	"github.com/eligu/se-uom-vcs-sub001/processor"
	"github.com/eligu/se-uom-vcs-sub001/scheduler"
)

// DefaultHistorySize is the number of finished units an Engine remembers.
const DefaultHistorySize = 256

// Options supplies the collaborators an Engine cannot read from a config file.
type Options struct {
	// Logger overrides the logrus logger built from the logging section.
	Logger core.Logger
	// Registerer receives the Prometheus collectors when metrics are enabled.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prom.Registerer
	// TracerProvider is used when tracing is enabled. Defaults to the global one.
	TracerProvider trace.TracerProvider
	PanicHandler   core.PanicHandler
	IDGenerator    core.IDGenerator
	HistorySize    int
}

// Engine owns one shared pool, the scheduler running on it and every
// observability hook configured for them. Queues built through the Engine
// share the same pool and hooks.
type Engine struct {
	cfg     *config.Config
	deps    config.Deps
	history *core.History

	pool  *core.GoroutineThreadPool
	sched *scheduler.TaskScheduler

	exporter *promexp.MetricsExporter
	poller   *promexp.SnapshotPoller

	mu      sync.Mutex
	started bool
	stopped bool
}

// New builds a stopped engine from cfg.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, core.ConfigErrorf("engine: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		l, err := cfg.NewLogger(nil)
		if err != nil {
			return nil, err
		}
		logger = l
	}
	historySize := opts.HistorySize
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}

	e := &Engine{cfg: cfg, history: core.NewHistory(historySize)}
	observers := []core.Observer{e.history}
	var metrics core.Metrics = &core.NilMetrics{}

	if cfg.Metrics.Enabled {
		exporter, err := promexp.NewMetricsExporter(opts.Registerer, promexp.ExporterOptions{Namespace: cfg.Metrics.Namespace})
		if err != nil {
			return nil, err
		}
		poller, err := promexp.NewSnapshotPoller(opts.Registerer, promexp.PollerOptions{
			Namespace: cfg.Metrics.Namespace,
			Interval:  cfg.Metrics.PollInterval,
		})
		if err != nil {
			return nil, err
		}
		e.exporter, e.poller = exporter, poller
		metrics = exporter
		observers = append(observers, exporter)
	}
	if cfg.Tracing.Enabled {
		observers = append(observers, tracing.NewSpanObserver(opts.TracerProvider))
	}

	e.deps = config.Deps{
		Logger:       logger,
		Metrics:      metrics,
		Observer:     core.Observers(observers...),
		IDGenerator:  opts.IDGenerator,
		PanicHandler: opts.PanicHandler,
	}

	pool, err := cfg.NewPool(e.deps)
	if err != nil {
		return nil, err
	}
	sched, err := cfg.NewScheduler(pool, e.deps)
	if err != nil {
		return nil, err
	}
	e.pool, e.sched = pool, sched
	if e.poller != nil {
		e.poller.AddPool(pool.ID(), pool)
		e.poller.AddScheduler(sched.ID(), sched)
	}
	return e, nil
}

// Start starts the pool and the snapshot poller. Units scheduled before
// Start wait in the pool queue.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return core.StateErrorf("engine: already shut down")
	}
	if e.started {
		return nil
	}
	e.pool.Start(ctx)
	if e.poller != nil {
		e.poller.Start(ctx)
	}
	e.started = true
	e.deps.Logger.Info("engine started",
		core.F("pool", e.pool.ID()),
		core.F("workers", e.pool.WorkerCount()),
		core.F("scheduler", e.sched.ID()))
	return nil
}

// Scheduler returns the engine's task scheduler.
func (e *Engine) Scheduler() *scheduler.TaskScheduler { return e.sched }

// Pool returns the shared pool.
func (e *Engine) Pool() *core.GoroutineThreadPool { return e.pool }

// History returns the ring buffer of recently finished units.
func (e *Engine) History() *core.History { return e.history }

// Deps returns the collaborators handed to every component of this engine.
func (e *Engine) Deps() config.Deps { return e.deps }

// TaskType returns the configured category with the given name.
func (e *Engine) TaskType(name string) (core.TaskType, error) { return e.cfg.TaskType(name) }

// Executor returns an executor that schedules every unit under the named
// category, suitable for a parallel processor queue.
func (e *Engine) Executor(category string) (*scheduler.TaskExecutor, error) {
	tt, err := e.cfg.TaskType(category)
	if err != nil {
		return nil, err
	}
	return scheduler.NewTaskExecutor(e.sched, tt)
}

// NewQueue builds the processor queue configured under id on the engine's
// pool. When category is non-empty a parallel queue submits through the
// scheduler under that category instead of straight to the pool.
func NewQueue[E any](e *Engine, id string, category string) (*processor.Queue[E], error) {
	var exec core.Executor
	if category != "" {
		te, err := e.Executor(category)
		if err != nil {
			return nil, err
		}
		exec = te
	}
	q, err := config.NewQueue[E](e.cfg, id, e.pool, exec, e.deps)
	if err != nil {
		return nil, err
	}
	if e.poller != nil {
		e.poller.AddQueue(q.ID(), q)
	}
	return q, nil
}

// Shutdown drains the scheduler, then stops the pool. Queues built on the
// engine must be stopped first. The pool is given until ctx's deadline to
// finish queued units; without a deadline it is stopped immediately after
// the scheduler drains.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	err := e.sched.Shutdown(ctx)
	if errors.Is(err, core.ErrInterrupted) {
		// Queued units cannot drain in time; discard them.
		err = multierr.Append(err, e.sched.ShutdownNow(context.WithoutCancel(ctx)))
	}

	if deadline, ok := ctx.Deadline(); ok {
		if stopErr := e.pool.StopGraceful(max(time.Until(deadline), time.Millisecond)); stopErr != nil {
			err = multierr.Append(err, stopErr)
		}
	} else {
		e.pool.Stop()
	}
	if e.poller != nil {
		e.poller.CollectOnce()
		e.poller.Stop()
	}

	if err != nil {
		e.deps.Logger.Warn("engine shut down with errors", core.F("error", err))
	} else {
		e.deps.Logger.Info("engine shut down")
	}
	return err
}
