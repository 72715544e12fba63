package scheduler

import (
	"context"

	"github.com/eligu/se-uom-vcs-sub001/core"
)

// TaskExecutor submits every task to one scheduler under one fixed category.
// It satisfies core.Executor, so it can drive a parallel processor queue.
type TaskExecutor struct {
	sched Scheduler
	tt    core.TaskType
}

var _ core.AbortableExecutor = (*TaskExecutor)(nil)

// NewTaskExecutor fails unless s can currently schedule tt.
func NewTaskExecutor(s Scheduler, tt core.TaskType) (*TaskExecutor, error) {
	if s == nil {
		return nil, core.ConfigErrorf("task executor: nil scheduler")
	}
	if !s.CanSchedule(tt) {
		return nil, core.ConfigErrorf("task executor: scheduler cannot schedule %s", tt)
	}
	return &TaskExecutor{sched: s, tt: tt}, nil
}

// Execute schedules task; it blocks under the same conditions as Schedule.
func (e *TaskExecutor) Execute(ctx context.Context, task core.Task) error {
	return e.sched.Schedule(ctx, task, e.tt)
}

// ExecuteAbortable schedules task with abort as its discard hook.
func (e *TaskExecutor) ExecuteAbortable(ctx context.Context, task core.Task, abort func()) error {
	return e.sched.ScheduleAbortable(ctx, task, e.tt, abort)
}

func (e *TaskExecutor) TaskType() core.TaskType { return e.tt }
