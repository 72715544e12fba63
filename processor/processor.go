// Package processor fans entities out to sets of independent handlers.
//
// A Queue is itself a Processor, so queues nest. Each queue owns one dispatch
// Strategy:
//
//   - Serial delivers on the caller's goroutine, in registration order.
//   - Parallel submits one unit per member per entity to a core.Executor.
//   - BoundedParallel is Parallel with a fixed number of admission slots; the
//     producer blocks in Process while every slot is taken.
//
// Members that answer false from Process (or fail) stop receiving entities but
// stay registered; they are stopped when the queue itself stops. Processing
// failures are never returned from Process: they are collected and reported,
// combined, by the next Stop.
package processor

import (
	"context"
	"sync/atomic"

	"github.com/eligu/se-uom-vcs-sub001/core"
)

// Processor consumes entities one at a time.
type Processor[E any] interface {
	// Process handles one entity. It returns false when the processor wants no
	// more entities; that is not a failure. Calling Process before Start is a
	// core.ErrState error.
	Process(ctx context.Context, entity E) (bool, error)

	// Start is idempotent.
	Start(ctx context.Context) error

	// Stop is idempotent.
	Stop(ctx context.Context) error

	ID() string
	IsStarted() bool
}

// Func is a Processor backed by plain functions.
type Func[E any] struct {
	id      string
	process func(ctx context.Context, entity E) (bool, error)
	started atomic.Bool

	// OnStart and OnStop, when set, run on the corresponding lifecycle
	// transition.
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

var _ Processor[any] = (*Func[any])(nil)

// NewFunc returns a processor named id that delegates Process to fn.
func NewFunc[E any](id string, fn func(ctx context.Context, entity E) (bool, error)) *Func[E] {
	return &Func[E]{id: id, process: fn}
}

func (f *Func[E]) Process(ctx context.Context, entity E) (bool, error) {
	if !f.started.Load() {
		return false, core.StateErrorf("processor %q is not started", f.id)
	}
	return f.process(ctx, entity)
}

func (f *Func[E]) Start(ctx context.Context) error {
	if f.started.Load() {
		return nil
	}
	if f.OnStart != nil {
		if err := f.OnStart(ctx); err != nil {
			return err
		}
	}
	f.started.Store(true)
	return nil
}

func (f *Func[E]) Stop(ctx context.Context) error {
	if !f.started.CompareAndSwap(true, false) {
		return nil
	}
	if f.OnStop != nil {
		return f.OnStop(ctx)
	}
	return nil
}

func (f *Func[E]) ID() string      { return f.id }
func (f *Func[E]) IsStarted() bool { return f.started.Load() }
