package scheduler

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/eligu/se-uom-vcs-sub001/core"
)

// admission is the global outstanding cap. A nil *admission admits everything.
type admission struct {
	slots   *semaphore.Weighted
	recheck time.Duration
}

func newAdmission(capacity int, recheck time.Duration) *admission {
	return &admission{
		slots:   semaphore.NewWeighted(int64(capacity)),
		recheck: recheck,
	}
}

// acquire takes one slot, blocking while none is free. The wait is cut into
// recheck-sized pieces so that a closed scheduler releases its blocked
// submitters even if no slot is ever freed.
func (a *admission) acquire(ctx context.Context, closed func() bool) error {
	if a == nil {
		return nil
	}
	for {
		if closed() {
			return errClosed
		}
		if a.slots.TryAcquire(1) {
			break
		}

		waitCtx, cancel := context.WithTimeout(ctx, a.recheck)
		err := a.slots.Acquire(waitCtx, 1)
		cancel()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return core.Interrupted("waiting for outstanding capacity", ctx.Err())
		}
	}

	if closed() {
		a.slots.Release(1)
		return errClosed
	}
	return nil
}

func (a *admission) release() {
	if a == nil {
		return
	}
	a.slots.Release(1)
}

var errClosed = errors.New("scheduler closed")

func isInterrupted(err error) bool {
	return errors.Is(err, core.ErrInterrupted)
}
