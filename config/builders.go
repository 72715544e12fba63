package config

import (
	"io"

	"github.com/eligu/se-uom-vcs-sub001/core"
	"github.com/eligu/se-uom-vcs-sub001/processor"
	"github.com/eligu/se-uom-vcs-sub001/scheduler"
)

// Deps are the collaborators shared by every component built from a Config.
// Nil fields fall back to each component's defaults.
type Deps struct {
	Logger       core.Logger
	Metrics      core.Metrics
	Observer     core.Observer
	IDGenerator  core.IDGenerator
	PanicHandler core.PanicHandler
}

// NewLogger returns a logrus-backed logger at the configured level.
func (c *Config) NewLogger(out io.Writer) (*core.LogrusLogger, error) {
	return core.NewDefaultLogger(out, c.Logging.Level)
}

// NewPool returns a stopped pool; the caller starts it.
func (c *Config) NewPool(deps Deps) (*core.GoroutineThreadPool, error) {
	return core.NewGoroutineThreadPoolWithConfig(c.Pool.ID, c.Pool.Workers, &core.PoolConfig{
		PanicHandler: deps.PanicHandler,
		Metrics:      deps.Metrics,
		Logger:       deps.Logger,
	})
}

// TaskTypes converts the configured categories, in declaration order.
func (c *Config) TaskTypes() ([]core.TaskType, error) {
	out := make([]core.TaskType, 0, len(c.Scheduler.Types))
	for _, t := range c.Scheduler.Types {
		maxThreads := t.MaxThreads
		if maxThreads == 0 {
			maxThreads = core.UnlimitedThreads
		}
		tt, err := core.NewTaskType(t.Name, maxThreads)
		if err != nil {
			return nil, err
		}
		out = append(out, tt)
	}
	return out, nil
}

// TaskType returns the configured category with the given name.
func (c *Config) TaskType(name string) (core.TaskType, error) {
	types, err := c.TaskTypes()
	if err != nil {
		return core.TaskType{}, err
	}
	for _, tt := range types {
		if tt.Name() == name {
			return tt, nil
		}
	}
	return core.TaskType{}, core.ConfigErrorf("no task type %q configured", name)
}

// NewScheduler builds the configured scheduler variant over exec.
func (c *Config) NewScheduler(exec core.Executor, deps Deps) (*scheduler.TaskScheduler, error) {
	types, err := c.TaskTypes()
	if err != nil {
		return nil, err
	}
	sc := &scheduler.Config{
		ID:              c.Scheduler.ID,
		MaxOutstanding:  c.Scheduler.MaxOutstanding,
		RecheckInterval: c.Scheduler.RecheckInterval,
		Logger:          deps.Logger,
		Metrics:         deps.Metrics,
		Observer:        deps.Observer,
		IDGenerator:     deps.IDGenerator,
	}
	if c.Scheduler.Kind == SchedulerBounded {
		return scheduler.NewBoundedScheduler(exec, types, sc)
	}
	return scheduler.NewStaticScheduler(exec, types, sc)
}

// NewStrategy builds the dispatch strategy named by qc. Parallel queues
// submit to exec, or to pool when exec is nil; bounded-parallel queues
// always use pool.
func NewStrategy[E any](qc QueueConfig, pool core.ThreadPool, exec core.Executor) (processor.Strategy[E], error) {
	switch qc.Strategy {
	case StrategySerial:
		return processor.Serial[E](), nil
	case StrategyParallel:
		if exec == nil && pool != nil {
			exec = pool
		}
		return processor.Parallel[E](exec)
	case StrategyBoundedParallel:
		return processor.BoundedParallel[E](pool, qc.TaskQueueSize)
	}
	return nil, core.ConfigErrorf("queue %q: unknown strategy %q", qc.ID, qc.Strategy)
}

// NewQueue builds the processor queue configured under id.
func NewQueue[E any](c *Config, id string, pool core.ThreadPool, exec core.Executor, deps Deps) (*processor.Queue[E], error) {
	qc, err := c.Queue(id)
	if err != nil {
		return nil, err
	}
	strategy, err := NewStrategy[E](qc, pool, exec)
	if err != nil {
		return nil, err
	}
	return processor.NewQueue(qc.ID, strategy, &processor.Config{
		Logger:      deps.Logger,
		Metrics:     deps.Metrics,
		Observer:    deps.Observer,
		IDGenerator: deps.IDGenerator,
	})
}
