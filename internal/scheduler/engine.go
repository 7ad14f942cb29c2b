package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"remindbot/internal/trigger"
	logx "remindbot/pkg/logx"
)

// ErrExhausted is returned by Schedule when a trigger has no future firing
// left (a once trigger whose instant already passed).
var ErrExhausted = errors.New("trigger exhausted")

// parkInterval bounds how long the loop sleeps with an empty task set, so
// lastTick keeps advancing and the self-check can tell "idle" from "dead".
const parkInterval = time.Minute

type Engine struct {
	cfg  Config
	log  logx.Logger
	fire FireFunc

	mu        sync.Mutex
	jobs      map[string]*job
	genSeq    uint64
	queue     chan firing
	stopCh    chan struct{}
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// wake pokes the fire loop after a task set mutation so it re-arms
	// its timer against the new soonest deadline.
	wake chan struct{}

	// lastTick is the loop's heartbeat (UnixNano), read by Health().
	lastTick atomic.Int64

	// now is swapped in white-box tests.
	now func() time.Time
}

func New(cfg Config, fire FireFunc, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:  cfg.withDefaults(),
		log:  log,
		fire: fire,
		jobs: map[string]*job{},
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

// Apply updates tunables that are safe to change while running. Worker and
// queue sizing only take effect on the next Start.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	e.mu.Lock()
	e.cfg.Grace = cfg.Grace
	e.cfg.Workers = cfg.Workers
	e.cfg.QueueSize = cfg.QueueSize
	e.mu.Unlock()
}

// Schedule inserts or atomically replaces the task for id. The previous
// trigger (if any) stops being authoritative the moment this returns:
// its queued firings are stamped with an older generation and get dropped.
func (e *Engine) Schedule(id string, ownerID int64, trig trigger.Trigger) error {
	now := e.now()
	next := trig.Next(now)
	if next.IsZero() {
		e.mu.Lock()
		delete(e.jobs, id)
		e.mu.Unlock()
		return ErrExhausted
	}

	e.mu.Lock()
	e.genSeq++
	e.jobs[id] = &job{id: id, ownerID: ownerID, trig: trig, next: next, gen: e.genSeq}
	e.mu.Unlock()

	e.poke()
	return nil
}

// Cancel removes the task for id. Unknown ids are a no-op.
func (e *Engine) Cancel(id string) {
	e.mu.Lock()
	_, ok := e.jobs[id]
	if ok {
		delete(e.jobs, id)
	}
	e.mu.Unlock()
	if ok {
		e.poke()
	}
}

func (e *Engine) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) Health() Health {
	e.mu.Lock()
	h := Health{Running: e.stopCh != nil && e.stopDone == nil, Tasks: len(e.jobs)}
	e.mu.Unlock()
	if ns := e.lastTick.Load(); ns != 0 {
		h.LastTick = time.Unix(0, ns)
	}
	return h
}

// Snapshot returns a copy of the current task set, soonest first is NOT
// guaranteed (map order).
func (e *Engine) Snapshot() []TaskView {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TaskView, 0, len(e.jobs))
	for _, j := range e.jobs {
		out = append(out, TaskView{
			JobID:   j.id,
			OwnerID: j.ownerID,
			Next:    j.next,
			Spec:    j.trig.Spec,
			Once:    j.trig.Kind == trigger.KindOnce,
		})
	}
	return out
}

// Start activates the fire loop and worker pool. Scheduling calls made
// before Start (rehydration) are picked up atomically on activation.
// Start is idempotent; if a Stop() is in progress it waits for it first.
func (e *Engine) Start(ctx context.Context) {
	for {
		e.mu.Lock()
		if e.stopCh == nil {
			break
		}
		done := e.stopDone
		if done == nil {
			// already running
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()
		select {
		case <-done:
			// loop and try again
		case <-ctx.Done():
			return
		}
	}
	defer e.mu.Unlock()

	e.stopCh = make(chan struct{})
	e.runCtx, e.runCancel = context.WithCancel(ctx)
	// Fresh queue per run so a stop/start toggle never executes stale firings.
	e.queue = make(chan firing, e.cfg.QueueSize)

	runCtx := e.runCtx
	stopCh := e.stopCh
	queue := e.queue

	workers := e.cfg.Workers
	e.workerWG.Add(workers + 1)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer e.workerWG.Done()
			e.worker(runCtx, stopCh, queue, idx)
		}()
	}
	go func() {
		defer e.workerWG.Done()
		e.loop(runCtx, stopCh)
	}()

	e.log.Info("engine started", logx.Int("workers", workers), logx.Int("tasks", len(e.jobs)), logx.Duration("grace", e.cfg.Grace))
}

// Stop deactivates the loop and workers. The task set is preserved, so a
// later Start resumes scheduling without rehydration.
func (e *Engine) Stop(ctx context.Context) {
	start := time.Now()
	e.mu.Lock()
	if e.stopCh == nil {
		e.mu.Unlock()
		return
	}
	if e.stopDone != nil {
		done := e.stopDone
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	e.stopDone = done
	stopCh := e.stopCh
	cancel := e.runCancel
	e.runCancel = nil
	e.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	// Finalize in background so Stop can return on ctx timeout safely.
	go func() {
		e.workerWG.Wait()
		e.mu.Lock()
		e.stopCh = nil
		e.runCtx = nil
		e.queue = nil
		e.stopDone = nil
		e.mu.Unlock()
		close(done)
		e.log.Info("engine stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// loop is the single fire loop: sleep until the soonest deadline, collect
// due tasks, hand them to the worker pool, repeat.
func (e *Engine) loop(ctx context.Context, stopCh <-chan struct{}) {
	timer := time.NewTimer(parkInterval)
	defer timer.Stop()

	for {
		now := e.now()
		e.lastTick.Store(now.UnixNano())
		e.collectDue(now)

		wait := e.untilNext(e.now())
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-e.wake:
		case <-timer.C:
		}
	}
}

// untilNext returns the sleep duration to the soonest scheduled firing,
// capped at parkInterval.
func (e *Engine) untilNext(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	wait := parkInterval
	for _, j := range e.jobs {
		d := j.next.Sub(now)
		if d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// collectDue enqueues every task whose deadline has arrived and advances
// (or retires) it. Returns the number of firings enqueued.
func (e *Engine) collectDue(now time.Time) int {
	type drop struct {
		id    string
		delay time.Duration
		once  bool
	}

	e.mu.Lock()
	grace := e.cfg.Grace
	queue := e.queue
	var due []firing
	var skipped []drop
	for _, j := range e.jobs {
		if j.next.After(now) {
			continue
		}
		delay := now.Sub(j.next)
		if delay > grace {
			// Too stale to deliver. Recurring tasks skip this occurrence;
			// once tasks are retired (the stored record self-heals on restart).
			if j.trig.Kind == trigger.KindOnce {
				delete(e.jobs, j.id)
			} else {
				j.next = j.trig.Next(now)
			}
			skipped = append(skipped, drop{id: j.id, delay: delay, once: j.trig.Kind == trigger.KindOnce})
			continue
		}

		due = append(due, firing{
			Firing: Firing{
				JobID:   j.id,
				OwnerID: j.ownerID,
				Due:     j.next,
				Delay:   delay,
				Once:    j.trig.Kind == trigger.KindOnce,
			},
			gen: j.gen,
		})
		if j.trig.Kind == trigger.KindOnce {
			// Retired at enqueue: a once task has no further occurrence, and
			// leaving it in the set would re-collect it immediately.
			delete(e.jobs, j.id)
		} else {
			j.next = j.trig.Next(now)
		}
	}
	e.mu.Unlock()

	for _, d := range skipped {
		e.log.Warn("due firing beyond grace window",
			logx.String("job_id", d.id),
			logx.Duration("delay", d.delay),
			logx.Bool("once", d.once),
			logx.Bool("retired", d.once),
		)
	}

	enq := 0
	for _, f := range due {
		if queue == nil {
			break
		}
		select {
		case queue <- f:
			enq++
		default:
			e.log.Warn("firing queue full; dropping occurrence",
				logx.String("job_id", f.JobID),
				logx.Bool("once", f.Once),
				logx.Int("queue_cap", cap(queue)),
			)
		}
	}
	return enq
}
