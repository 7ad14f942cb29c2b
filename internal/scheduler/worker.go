package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	logx "remindbot/pkg/logx"
)

func (e *Engine) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan firing, idx int) {
	e.log.Debug("worker started", logx.Int("worker", idx))
	defer e.log.Debug("worker stopped", logx.Int("worker", idx))
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case f := <-queue:
			e.execOne(ctx, f)
		}
	}
}

// execOne runs a single firing if it is still current.
//
// Staleness rules: a recurring firing only executes while its job is still
// in the set with the same generation (a replace or cancel in between makes
// it stale). A once firing was removed from the set at enqueue, so absence
// is its normal state; it only goes stale if the id was re-added (replaced)
// in the meantime.
func (e *Engine) execOne(ctx context.Context, f firing) {
	e.mu.Lock()
	j, ok := e.jobs[f.JobID]
	e.mu.Unlock()

	stale := false
	switch {
	case ok && j.gen != f.gen:
		stale = true
	case !ok && !f.Once:
		stale = true
	}
	if stale {
		e.log.Debug("dropping stale firing", logx.String("job_id", f.JobID), logx.Time("due", f.Due))
		return
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic in fire callback",
				logx.String("job_id", f.JobID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()

	e.fire(ctx, f.Firing)
	e.log.Debug("firing handled",
		logx.String("job_id", f.JobID),
		logx.Duration("delay", f.Delay),
		logx.Duration("dur", time.Since(start)),
	)
}
