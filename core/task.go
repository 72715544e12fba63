package core

import (
	"context"
	"fmt"
	"math"
)

// Task is the unit of work (Closure).
// A non-nil error (or a panic) is a processing failure: it is collected by the
// component that ran the task and reported when that component stops.
type Task func(ctx context.Context) error

// TypedTask is a task that knows which category it must be scheduled under.
type TypedTask interface {
	Run(ctx context.Context) error
	TaskType() TaskType
}

// Executor accepts one unit of work for asynchronous execution.
type Executor interface {
	Execute(ctx context.Context, task Task) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task Task) error

func (f ExecutorFunc) Execute(ctx context.Context, task Task) error { return f(ctx, task) }

// AbortableExecutor is an Executor that can discard accepted work, for
// example on an immediate shutdown. For every unit it accepts, exactly one of
// task or abort is eventually called. abort may be nil.
type AbortableExecutor interface {
	Executor
	ExecuteAbortable(ctx context.Context, task Task, abort func()) error
}

// ExecuteAbortable submits task to exec with abort as its discard hook. An
// exec that is not an AbortableExecutor never calls abort.
func ExecuteAbortable(ctx context.Context, exec Executor, task Task, abort func()) error {
	if ae, ok := exec.(AbortableExecutor); ok {
		return ae.ExecuteAbortable(ctx, task, abort)
	}
	return exec.Execute(ctx, task)
}

// =============================================================================
// TaskType: scheduling category descriptor
// =============================================================================

// UnlimitedThreads is the thread cap of the Unlimited category. In practice the
// shared pool's worker count is the effective limit.
const UnlimitedThreads = math.MaxInt32

// TaskType names a class of work with its own concurrency cap.
// It is a comparable value and can be used as a map key; equality is by
// (name, maxThreads).
type TaskType struct {
	name       string
	maxThreads int
}

var (
	// SingleThread runs at most one unit at a time.
	SingleThread = TaskType{name: "single-thread", maxThreads: 1}

	// Unlimited is only bounded by the shared pool.
	Unlimited = TaskType{name: "unlimited", maxThreads: UnlimitedThreads}
)

// NewTaskType returns a category that allows maxThreads concurrent units.
func NewTaskType(name string, maxThreads int) (TaskType, error) {
	if maxThreads < 1 {
		return TaskType{}, ConfigErrorf("task type %q: maxThreads must be at least 1, got %d", name, maxThreads)
	}
	return TaskType{name: name, maxThreads: maxThreads}, nil
}

// MustTaskType is like NewTaskType but panics on invalid arguments.
// Intended for package-level category declarations.
func MustTaskType(name string, maxThreads int) TaskType {
	tt, err := NewTaskType(name, maxThreads)
	if err != nil {
		panic(err)
	}
	return tt
}

func (t TaskType) Name() string    { return t.name }
func (t TaskType) MaxThreads() int { return t.maxThreads }

// IsZero reports whether t is the zero value, which is never a valid category.
func (t TaskType) IsZero() bool { return t.maxThreads == 0 }

func (t TaskType) String() string {
	if t.maxThreads == UnlimitedThreads {
		return fmt.Sprintf("%s(unlimited)", t.name)
	}
	return fmt.Sprintf("%s(%d)", t.name, t.maxThreads)
}

// typedTask is the TypedTask built by WithType.
type typedTask struct {
	task Task
	tt   TaskType
}

func (t typedTask) Run(ctx context.Context) error { return t.task(ctx) }
func (t typedTask) TaskType() TaskType             { return t.tt }

// WithType binds a task to a category.
func WithType(task Task, tt TaskType) TypedTask {
	return typedTask{task: task, tt: tt}
}
