package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a unit panics on a pool worker and nothing above
// it recovered the panic.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked unit
	// - source: The name of the pool, queue or scheduler where the panic occurred
	// - workerID: The ID of the pool worker, -1 when not on a pool worker
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, source string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics at error level.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic and its stack.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, source string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewLogrusLogger(nil)
	}
	logger.Error("unit panicked",
		F("source", source),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting execution metrics.
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a unit took to execute.
	RecordTaskDuration(source string, category string, duration time.Duration)

	// RecordTaskPanic records that a unit panicked during execution.
	RecordTaskPanic(source string, panicInfo any)

	// RecordTaskFailure records a processing failure (error or panic).
	RecordTaskFailure(source string, category string)

	// RecordQueueDepth records the current number of pending units.
	RecordQueueDepth(source string, category string, depth int)

	// RecordTaskRejected records that a unit was rejected (e.g., during shutdown).
	RecordTaskRejected(source string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(source string, category string, duration time.Duration) {}

func (m *NilMetrics) RecordTaskPanic(source string, panicInfo any) {}

func (m *NilMetrics) RecordTaskFailure(source string, category string) {}

func (m *NilMetrics) RecordQueueDepth(source string, category string, depth int) {}

func (m *NilMetrics) RecordTaskRejected(source string, reason string) {}

// =============================================================================
// Observer: per-unit bookkeeping hooks
// =============================================================================

// UnitInfo identifies one unit of work handed to the pool.
type UnitInfo struct {
	ID string
	// Source is the scheduler or queue id.
	Source string
	// Category is the task type name, or the member processor id for queues.
	Category string
}

// Observer receives lifecycle callbacks for units of work. Callbacks run on
// the submitting or executing goroutine and must not block; they never affect
// scheduling decisions.
type Observer interface {
	// OnSubmitted is called once the unit has been accepted.
	OnSubmitted(u UnitInfo)
	// OnStarted is called on the pool worker right before the body runs.
	OnStarted(u UnitInfo)
	// OnCompleted is called after the body returned; err is the body's failure.
	OnCompleted(u UnitInfo, err error, duration time.Duration)
	// OnAborted is called for accepted units that were discarded before running.
	OnAborted(u UnitInfo)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) OnSubmitted(UnitInfo) {}

func (NopObserver) OnStarted(UnitInfo) {}

func (NopObserver) OnCompleted(UnitInfo, error, time.Duration) {}

func (NopObserver) OnAborted(UnitInfo) {}

type multiObserver []Observer

// Observers fans every callback out to each non-nil observer, in order.
func Observers(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return NopObserver{}
	case 1:
		return out[0]
	}
	return out
}

func (m multiObserver) OnSubmitted(u UnitInfo) {
	for _, o := range m {
		o.OnSubmitted(u)
	}
}

func (m multiObserver) OnStarted(u UnitInfo) {
	for _, o := range m {
		o.OnStarted(u)
	}
}

func (m multiObserver) OnCompleted(u UnitInfo, err error, d time.Duration) {
	for _, o := range m {
		o.OnCompleted(u, err, d)
	}
}

func (m multiObserver) OnAborted(u UnitInfo) {
	for _, o := range m {
		o.OnAborted(u)
	}
}
