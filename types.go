package engine

import (
	"context"

	"github.com/eligu/se-uom-vcs-sub001/core"
	"github.com/eligu/se-uom-vcs-sub001/processor"
	"github.com/eligu/se-uom-vcs-sub001/scheduler"
)

// Re-export commonly used types so most callers only import this package.

// Task is the unit of work (Closure).
type Task = core.Task

// TypedTask is a task that carries its own category.
type TypedTask = core.TypedTask

// TaskType names a scheduling category and its thread cap.
type TaskType = core.TaskType

// Executor accepts units for asynchronous execution.
type Executor = core.Executor

// ThreadPool is the shared pool every queue and scheduler submits to.
type ThreadPool = core.ThreadPool

// Scheduler is the task scheduler contract.
type Scheduler = scheduler.Scheduler

// Processor receives entities from a processor queue.
type Processor[E any] = processor.Processor[E]

// Queue is a processor queue; it is itself a Processor.
type Queue[E any] = processor.Queue[E]

// Well-known categories.
var (
	SingleThread = core.SingleThread
	Unlimited    = core.Unlimited
)

// Error kinds, matched with errors.Is.
var (
	ErrConfiguration     = core.ErrConfiguration
	ErrState             = core.ErrState
	ErrInterrupted       = core.ErrInterrupted
	ErrProcessingFailure = core.ErrProcessingFailure
)

// NewTaskType returns a category that allows maxThreads concurrent units.
func NewTaskType(name string, maxThreads int) (TaskType, error) {
	return core.NewTaskType(name, maxThreads)
}

// WithType binds a task to a category.
func WithType(task Task, tt TaskType) TypedTask {
	return core.WithType(task, tt)
}

// NewFunc adapts a function to a Processor with no start/stop work.
func NewFunc[E any](id string, fn func(ctx context.Context, entity E) (bool, error)) *processor.Func[E] {
	return processor.NewFunc(id, fn)
}
