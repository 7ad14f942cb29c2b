package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/trigger"
	logx "remindbot/pkg/logx"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []Firing
}

func (r *fireRecorder) fire(_ context.Context, f Firing) {
	r.mu.Lock()
	r.fired = append(r.fired, f)
	r.mu.Unlock()
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func testEngine(t *testing.T, rec *fireRecorder, now time.Time) *Engine {
	t.Helper()
	e := New(Config{Workers: 1, QueueSize: 8}, rec.fire, logx.Nop())
	e.now = func() time.Time { return now }
	return e
}

func onceTrigger(t *testing.T, tod reminder.TimeOfDay, now time.Time) trigger.Trigger {
	t.Helper()
	trig, err := trigger.Compile(tod, reminder.Once, "UTC", now)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return trig
}

func dailyTrigger(t *testing.T, tod reminder.TimeOfDay, now time.Time) trigger.Trigger {
	t.Helper()
	trig, err := trigger.Compile(tod, reminder.Daily, "UTC", now)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return trig
}

func TestScheduleReplaceKeepsOneTask(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := &fireRecorder{}
	e := testEngine(t, rec, now)

	for hour := 11; hour <= 15; hour++ {
		trig := onceTrigger(t, reminder.TimeOfDay{Hour: hour}, now)
		if err := e.Schedule("job-1", 42, trig); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	snap := e.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot has %d tasks, want 1", len(snap))
	}
	want := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	if !snap[0].Next.Equal(want) {
		t.Fatalf("Next = %v, want %v (last replace wins)", snap[0].Next, want)
	}
}

func TestScheduleExhaustedTrigger(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := &fireRecorder{}
	e := testEngine(t, rec, now)

	trig := onceTrigger(t, reminder.TimeOfDay{Hour: 12}, now)
	if err := e.Schedule("job-1", 42, trig); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// Re-evaluating the same trigger after its instant has passed must
	// retire the task instead of leaving a dead entry behind.
	e.now = func() time.Time { return trig.At.Add(time.Hour) }
	if err := e.Schedule("job-1", 42, trig); err != ErrExhausted {
		t.Fatalf("Schedule = %v, want ErrExhausted", err)
	}
	if len(e.Snapshot()) != 0 {
		t.Fatal("exhausted schedule left a task behind")
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := &fireRecorder{}
	e := testEngine(t, rec, now)

	// Unknown id is a no-op.
	e.Cancel("nope")

	if err := e.Schedule("job-1", 42, dailyTrigger(t, reminder.TimeOfDay{Hour: 9}, now)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	e.Cancel("job-1")
	e.Cancel("job-1")
	if len(e.Snapshot()) != 0 {
		t.Fatal("cancel did not remove the task")
	}
}

func TestCollectDueOnceRetires(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := &fireRecorder{}
	e := testEngine(t, rec, now)
	e.queue = make(chan firing, 8)

	if err := e.Schedule("job-1", 42, onceTrigger(t, reminder.TimeOfDay{Hour: 12}, now)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// Not due yet: nothing collected.
	if n := e.collectDue(now); n != 0 {
		t.Fatalf("collectDue before due = %d, want 0", n)
	}

	due := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)
	if n := e.collectDue(due); n != 1 {
		t.Fatalf("collectDue = %d, want 1", n)
	}
	f := <-e.queue
	if f.JobID != "job-1" || !f.Once || !f.Due.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected firing: %+v", f.Firing)
	}
	if len(e.Snapshot()) != 0 {
		t.Fatal("once task not retired at enqueue")
	}
}

func TestCollectDueRecurringAdvances(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	rec := &fireRecorder{}
	e := testEngine(t, rec, now)
	e.queue = make(chan firing, 8)

	if err := e.Schedule("job-1", 42, dailyTrigger(t, reminder.TimeOfDay{Hour: 9}, now)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	due := time.Date(2024, 1, 1, 9, 0, 10, 0, time.UTC)
	if n := e.collectDue(due); n != 1 {
		t.Fatalf("collectDue = %d, want 1", n)
	}
	f := <-e.queue
	if f.Once {
		t.Fatal("daily firing flagged as once")
	}

	snap := e.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot has %d tasks, want 1", len(snap))
	}
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if !snap[0].Next.Equal(want) {
		t.Fatalf("advanced Next = %v, want %v", snap[0].Next, want)
	}
}

func TestCollectDueBeyondGrace(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	rec := &fireRecorder{}
	e := New(Config{Workers: 1, QueueSize: 8, Grace: 5 * time.Minute}, rec.fire, logx.Nop())
	e.now = func() time.Time { return now }
	e.queue = make(chan firing, 8)

	if err := e.Schedule("once", 42, onceTrigger(t, reminder.TimeOfDay{Hour: 9}, now)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := e.Schedule("daily", 42, dailyTrigger(t, reminder.TimeOfDay{Hour: 9}, now)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// An hour past the deadline: way beyond the 5m grace. Nothing fires.
	late := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if n := e.collectDue(late); n != 0 {
		t.Fatalf("collectDue = %d, want 0", n)
	}

	snap := e.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot has %d tasks, want 1 (once retired, daily kept)", len(snap))
	}
	if snap[0].JobID != "daily" {
		t.Fatalf("surviving task is %q, want daily", snap[0].JobID)
	}
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if !snap[0].Next.Equal(want) {
		t.Fatalf("skipped occurrence: Next = %v, want %v", snap[0].Next, want)
	}
}

func TestExecOneStaleness(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := &fireRecorder{}
	e := testEngine(t, rec, now)
	ctx := context.Background()

	// Recurring: must still be in the set with a matching generation.
	if err := e.Schedule("daily", 42, dailyTrigger(t, reminder.TimeOfDay{Hour: 9}, now)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	gen := e.jobs["daily"].gen

	e.execOne(ctx, firing{Firing: Firing{JobID: "daily"}, gen: gen})
	if rec.count() != 1 {
		t.Fatalf("current recurring firing dropped (fired=%d)", rec.count())
	}

	// Replace bumps the generation; the old firing is stale.
	if err := e.Schedule("daily", 42, dailyTrigger(t, reminder.TimeOfDay{Hour: 11}, now)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	e.execOne(ctx, firing{Firing: Firing{JobID: "daily"}, gen: gen})
	if rec.count() != 1 {
		t.Fatal("stale recurring firing executed after replace")
	}

	// Cancelled recurring firing is stale.
	e.Cancel("daily")
	e.execOne(ctx, firing{Firing: Firing{JobID: "daily"}, gen: gen + 1})
	if rec.count() != 1 {
		t.Fatal("stale recurring firing executed after cancel")
	}

	// Once firings run with the job already removed from the set.
	e.execOne(ctx, firing{Firing: Firing{JobID: "once", Once: true}, gen: 7})
	if rec.count() != 2 {
		t.Fatal("once firing dropped despite absent job")
	}

	// Unless the id was re-added in the meantime (replaced while in flight).
	if err := e.Schedule("once", 42, onceTrigger(t, reminder.TimeOfDay{Hour: 23}, now)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	e.execOne(ctx, firing{Firing: Firing{JobID: "once", Once: true}, gen: 7})
	if rec.count() != 2 {
		t.Fatal("stale once firing executed after replace")
	}
}

func TestExecOnePanicRecovery(t *testing.T) {
	t.Parallel()
	e := New(Config{}, func(context.Context, Firing) { panic("boom") }, logx.Nop())
	e.execOne(context.Background(), firing{Firing: Firing{JobID: "x", Once: true}})
	// Reaching here means the panic was contained.
}

func TestStartStopRoundtrip(t *testing.T) {
	t.Parallel()
	rec := &fireRecorder{}
	e := New(Config{Workers: 2, QueueSize: 8}, rec.fire, logx.Nop())

	ctx := context.Background()
	now := time.Now()
	if err := e.Schedule("job-1", 42, dailyTrigger(t, reminder.TimeOfDay{Hour: (now.UTC().Hour() + 2) % 24}, now)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	e.Start(ctx)
	h := e.Health()
	if !h.Running || h.Tasks != 1 {
		t.Fatalf("Health after Start = %+v", h)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	e.Stop(stopCtx)

	if h := e.Health(); h.Running {
		t.Fatal("still running after Stop")
	}
	// The task set survives a stop/start cycle.
	if len(e.Snapshot()) != 1 {
		t.Fatal("task set lost across Stop")
	}

	e.Start(ctx)
	if h := e.Health(); !h.Running || h.Tasks != 1 {
		t.Fatalf("Health after restart = %+v", h)
	}
	e.Stop(stopCtx)
}
