package service

import (
	"context"
	"time"

	"remindbot/internal/delivery"
	"remindbot/internal/scheduler"
	logx "remindbot/pkg/logx"
)

// handleFire runs on an engine worker for each due firing. It re-reads the
// record so edits made after scheduling are delivered, then classifies the
// delivery outcome:
//
//   - ok + once: the record is spent, delete it
//   - permanent: the recipient is gone, drop record and task
//   - transient: keep everything; the next occurrence is the retry
func (c *Core) handleFire(ctx context.Context, f scheduler.Firing) {
	r, ok, err := c.store.GetReminder(ctx, f.JobID)
	if err != nil {
		c.log.Error("fire aborted: record load failed", logx.String("job_id", f.JobID), logx.Err(err))
		return
	}
	if !ok {
		// Deleted between scheduling and firing.
		c.log.Debug("fire skipped: record gone", logx.String("job_id", f.JobID))
		c.engine.Cancel(f.JobID)
		return
	}

	zone := c.resolveZone(ctx, r.OwnerID)
	loc, err := time.LoadLocation(zone)
	if err != nil {
		c.log.Warn("owner zone failed to load; rendering in UTC", logx.String("job_id", f.JobID), logx.String("zone", zone))
		loc = time.UTC
	}

	res := c.disp.Deliver(ctx, r, loc)
	switch res {
	case delivery.ResultOK:
		c.log.Info("reminder delivered",
			logx.String("job_id", f.JobID),
			logx.Int64("owner_id", r.OwnerID),
			logx.Duration("delay", f.Delay),
			logx.Bool("once", f.Once),
		)
		if r.Recurrence.IsOnce() {
			if err := c.store.DeleteReminder(ctx, r.JobID); err != nil {
				c.log.Warn("spent once reminder not deleted", logx.String("job_id", r.JobID), logx.Err(err))
			}
		}
	case delivery.ResultPermanent:
		if err := c.store.DeleteReminder(ctx, r.JobID); err != nil {
			c.log.Warn("unreachable owner's reminder not deleted", logx.String("job_id", r.JobID), logx.Err(err))
		}
		c.engine.Cancel(r.JobID)
	case delivery.ResultTransient:
		// Dispatcher already logged the failure; the task stays scheduled.
	}
}
