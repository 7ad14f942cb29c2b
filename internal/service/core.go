// Package service implements the reminder operations behind the dialogue
// layer. It owns the ordering contract: compile first (validation), then
// the durable write, then the engine mutation, so a failed store write
// never leaves a ghost task and a failed compile never persists.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/delivery"
	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	"remindbot/internal/trigger"
	logx "remindbot/pkg/logx"
)

var (
	ErrNotFound   = errors.New("reminder not found")
	ErrEmptyBatch = errors.New("batch is empty")
)

const fallbackTimezone = "Europe/Moscow"

type Config struct {
	// DefaultTimezone is used for owners who never picked a zone.
	DefaultTimezone string
	Scheduler       scheduler.Config
}

// Draft is the user-supplied part of a reminder, before it gets an id.
type Draft struct {
	Text       string
	Time       reminder.TimeOfDay
	Recurrence reminder.Recurrence
	Attachment reminder.Attachment
}

type Core struct {
	store  storage.Store
	disp   delivery.Dispatcher
	engine *scheduler.Engine
	log    logx.Logger

	mu        sync.Mutex
	defaultTZ string

	now func() time.Time
}

func New(store storage.Store, disp delivery.Dispatcher, cfg Config, log logx.Logger) *Core {
	if log.IsZero() {
		log = logx.Nop()
	}
	tz := strings.TrimSpace(cfg.DefaultTimezone)
	if tz == "" {
		tz = fallbackTimezone
	}
	c := &Core{
		store:     store,
		disp:      disp,
		log:       log,
		defaultTZ: tz,
		now:       time.Now,
	}
	c.engine = scheduler.New(cfg.Scheduler, c.handleFire, log.With(logx.String("comp", "scheduler")))
	return c
}

// Apply updates runtime tunables on config reload.
func (c *Core) Apply(cfg Config) {
	tz := strings.TrimSpace(cfg.DefaultTimezone)
	if tz == "" {
		tz = fallbackTimezone
	}
	c.mu.Lock()
	c.defaultTZ = tz
	c.mu.Unlock()
	c.engine.Apply(cfg.Scheduler)
}

// Rehydrate compiles and schedules every stored reminder. Records that no
// longer compile (e.g. a zone removed from the tz database) are skipped
// with a log line, never dropped from the store. Call before Start.
func (c *Core) Rehydrate(ctx context.Context) (int, error) {
	all, err := c.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list reminders: %w", err)
	}

	zones := map[int64]string{}
	scheduled := 0
	for _, r := range all {
		zone, ok := zones[r.OwnerID]
		if !ok {
			zone = c.resolveZone(ctx, r.OwnerID)
			zones[r.OwnerID] = zone
		}
		trig, err := trigger.Compile(r.Time, r.Recurrence, zone, c.now())
		if err != nil {
			c.log.Warn("skipping reminder that no longer compiles",
				logx.String("job_id", r.JobID), logx.Err(err))
			continue
		}
		if err := c.engine.Schedule(r.JobID, r.OwnerID, trig); err != nil {
			c.log.Warn("skipping reminder with exhausted trigger",
				logx.String("job_id", r.JobID), logx.Err(err))
			continue
		}
		scheduled++
	}
	c.log.Info("rehydrated", logx.Int("stored", len(all)), logx.Int("scheduled", scheduled))
	return scheduled, nil
}

// Start activates the scheduling engine. Rehydrate first.
func (c *Core) Start(ctx context.Context) { c.engine.Start(ctx) }

// Stop deactivates the engine; the task set survives for a later Start.
func (c *Core) Stop(ctx context.Context) { c.engine.Stop(ctx) }

func (c *Core) Health() scheduler.Health { return c.engine.Health() }

// Create validates, persists and schedules one new reminder.
func (c *Core) Create(ctx context.Context, ownerID int64, d Draft) (reminder.Reminder, error) {
	r, trig, err := c.prepare(ctx, ownerID, d)
	if err != nil {
		return reminder.Reminder{}, err
	}
	if err := c.store.PutReminder(ctx, r); err != nil {
		return reminder.Reminder{}, fmt.Errorf("persist reminder: %w", err)
	}
	if err := c.engine.Schedule(r.JobID, r.OwnerID, trig); err != nil {
		// Compile guarantees a future firing, so this is unreachable in
		// practice; surface it rather than leave an unscheduled record.
		return reminder.Reminder{}, fmt.Errorf("schedule reminder: %w", err)
	}
	c.log.Info("reminder created",
		logx.String("job_id", r.JobID),
		logx.Int64("owner_id", ownerID),
		logx.String("time", r.Time.String()),
		logx.String("recurrence", string(r.Recurrence)),
	)
	return r, nil
}

// CreateBatch validates and compiles every draft before persisting any of
// them, so one malformed entry rejects the whole batch. Store writes then
// proceed entry by entry; on a write failure the already-created reminders
// stay (they are valid and scheduled) and the error reports the rest.
func (c *Core) CreateBatch(ctx context.Context, ownerID int64, drafts []Draft) ([]reminder.Reminder, error) {
	if len(drafts) == 0 {
		return nil, ErrEmptyBatch
	}

	prepared := make([]struct {
		r    reminder.Reminder
		trig trigger.Trigger
	}, 0, len(drafts))
	for i, d := range drafts {
		r, trig, err := c.prepare(ctx, ownerID, d)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i+1, err)
		}
		prepared = append(prepared, struct {
			r    reminder.Reminder
			trig trigger.Trigger
		}{r, trig})
	}

	out := make([]reminder.Reminder, 0, len(prepared))
	for i, p := range prepared {
		if err := c.store.PutReminder(ctx, p.r); err != nil {
			return out, fmt.Errorf("batch entry %d: persist: %w", i+1, err)
		}
		if err := c.engine.Schedule(p.r.JobID, p.r.OwnerID, p.trig); err != nil {
			return out, fmt.Errorf("batch entry %d: schedule: %w", i+1, err)
		}
		out = append(out, p.r)
	}
	c.log.Info("batch created", logx.Int64("owner_id", ownerID), logx.Int("count", len(out)))
	return out, nil
}

// CreateTest creates a real once reminder one minute out in the owner's
// zone, used by the "test reminder" menu entry.
func (c *Core) CreateTest(ctx context.Context, ownerID int64) (reminder.Reminder, error) {
	zone := c.resolveZone(ctx, ownerID)
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
	}
	at := c.now().In(loc).Add(time.Minute)
	return c.Create(ctx, ownerID, Draft{
		Text:       "Тестовое напоминание",
		Time:       reminder.TimeOfDay{Hour: at.Hour(), Minute: at.Minute()},
		Recurrence: reminder.Once,
	})
}

func (c *Core) prepare(ctx context.Context, ownerID int64, d Draft) (reminder.Reminder, trigger.Trigger, error) {
	zone := c.resolveZone(ctx, ownerID)
	trig, err := trigger.Compile(d.Time, d.Recurrence, zone, c.now())
	if err != nil {
		return reminder.Reminder{}, trigger.Trigger{}, err
	}
	r := reminder.Reminder{
		JobID:      newJobID(ownerID),
		OwnerID:    ownerID,
		Text:       strings.TrimSpace(d.Text),
		Time:       d.Time,
		Recurrence: d.Recurrence,
		Attachment: d.Attachment,
		CreatedAt:  c.now(),
	}
	if err := r.Validate(); err != nil {
		return reminder.Reminder{}, trigger.Trigger{}, err
	}
	return r, trig, nil
}

func newJobID(ownerID int64) string {
	return fmt.Sprintf("reminder_%d_%s", ownerID, uuid.NewString())
}

// UpdateText changes the message; the trigger stays untouched (the fire
// path reads the current record, so the edit is visible on next firing).
func (c *Core) UpdateText(ctx context.Context, ownerID int64, jobID, text string) error {
	return c.update(ctx, ownerID, jobID, false, func(r *reminder.Reminder) {
		r.Text = strings.TrimSpace(text)
	})
}

// UpdateTime changes the wall-clock time and replaces the live trigger.
func (c *Core) UpdateTime(ctx context.Context, ownerID int64, jobID string, tod reminder.TimeOfDay) error {
	return c.update(ctx, ownerID, jobID, true, func(r *reminder.Reminder) {
		r.Time = tod
	})
}

// UpdateRecurrence changes the repetition rule and replaces the live trigger.
func (c *Core) UpdateRecurrence(ctx context.Context, ownerID int64, jobID string, rec reminder.Recurrence) error {
	return c.update(ctx, ownerID, jobID, true, func(r *reminder.Reminder) {
		r.Recurrence = rec
	})
}

// UpdateAttachment replaces (or clears) the comment payload.
func (c *Core) UpdateAttachment(ctx context.Context, ownerID int64, jobID string, a reminder.Attachment) error {
	return c.update(ctx, ownerID, jobID, false, func(r *reminder.Reminder) {
		r.Attachment = a
	})
}

func (c *Core) update(ctx context.Context, ownerID int64, jobID string, recompile bool, mutate func(*reminder.Reminder)) error {
	r, ok, err := c.store.GetReminder(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load reminder: %w", err)
	}
	if !ok || r.OwnerID != ownerID {
		return ErrNotFound
	}

	mutate(&r)
	if err := r.Validate(); err != nil {
		return err
	}

	var trig trigger.Trigger
	if recompile {
		zone := c.resolveZone(ctx, ownerID)
		trig, err = trigger.Compile(r.Time, r.Recurrence, zone, c.now())
		if err != nil {
			return err
		}
	}

	if err := c.store.PutReminder(ctx, r); err != nil {
		return fmt.Errorf("persist reminder: %w", err)
	}
	if recompile {
		if err := c.engine.Schedule(r.JobID, r.OwnerID, trig); err != nil {
			return fmt.Errorf("schedule reminder: %w", err)
		}
	}
	return nil
}

// Delete removes the record and cancels its task. Unknown or foreign job
// ids return ErrNotFound.
func (c *Core) Delete(ctx context.Context, ownerID int64, jobID string) error {
	r, ok, err := c.store.GetReminder(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load reminder: %w", err)
	}
	if !ok || r.OwnerID != ownerID {
		return ErrNotFound
	}
	if err := c.store.DeleteReminder(ctx, jobID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete reminder: %w", err)
	}
	c.engine.Cancel(jobID)
	c.log.Info("reminder deleted", logx.String("job_id", jobID), logx.Int64("owner_id", ownerID))
	return nil
}

// List returns the owner's reminders in creation order.
func (c *Core) List(ctx context.Context, ownerID int64) ([]reminder.Reminder, error) {
	return c.store.ListByOwner(ctx, ownerID)
}

// Timezone returns the owner's effective IANA zone.
func (c *Core) Timezone(ctx context.Context, ownerID int64) string {
	return c.resolveZone(ctx, ownerID)
}

// SetTimezone validates and persists the zone, then recompiles and
// replaces every live trigger of that owner. Future firings only; a
// firing already in flight completes under the old zone.
func (c *Core) SetTimezone(ctx context.Context, ownerID int64, zone string) error {
	zone = strings.TrimSpace(zone)
	if _, err := time.LoadLocation(zone); err != nil || zone == "" {
		return fmt.Errorf("%w: unknown timezone %q", reminder.ErrValidation, zone)
	}
	if err := c.store.SetTimezone(ctx, ownerID, zone); err != nil {
		return fmt.Errorf("persist timezone: %w", err)
	}

	rs, err := c.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}
	for _, r := range rs {
		trig, err := trigger.Compile(r.Time, r.Recurrence, zone, c.now())
		if err != nil {
			c.log.Warn("reminder does not compile in new zone",
				logx.String("job_id", r.JobID), logx.String("zone", zone), logx.Err(err))
			continue
		}
		if err := c.engine.Schedule(r.JobID, r.OwnerID, trig); err != nil {
			c.log.Warn("rescheduling in new zone failed",
				logx.String("job_id", r.JobID), logx.Err(err))
		}
	}
	c.log.Info("timezone changed", logx.Int64("owner_id", ownerID), logx.String("zone", zone), logx.Int("rescheduled", len(rs)))
	return nil
}

func (c *Core) resolveZone(ctx context.Context, ownerID int64) string {
	zone, ok, err := c.store.GetTimezone(ctx, ownerID)
	if err != nil {
		c.log.Warn("timezone lookup failed; using default", logx.Int64("owner_id", ownerID), logx.Err(err))
	}
	if !ok || strings.TrimSpace(zone) == "" {
		c.mu.Lock()
		zone = c.defaultTZ
		c.mu.Unlock()
	}
	return zone
}
