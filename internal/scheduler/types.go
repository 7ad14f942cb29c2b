package scheduler

import (
	"context"
	"time"

	"remindbot/internal/trigger"
)

// Firing describes one due occurrence handed to the fire callback.
type Firing struct {
	JobID   string
	OwnerID int64
	Due     time.Time
	Delay   time.Duration
	Once    bool
}

// FireFunc is invoked from a worker goroutine for each due firing.
// Implementations own their own error handling; the engine never retries.
type FireFunc func(ctx context.Context, f Firing)

type Config struct {
	Workers   int
	QueueSize int
	// Grace bounds how stale a due firing may be and still be executed.
	Grace time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Grace <= 0 {
		c.Grace = 5 * time.Minute
	}
	return c
}

// Health is a point-in-time liveness snapshot.
type Health struct {
	Running  bool
	Tasks    int
	LastTick time.Time
}

// TaskView is a read-only snapshot of one scheduled task.
type TaskView struct {
	JobID   string
	OwnerID int64
	Next    time.Time
	Spec    string
	Once    bool
}

// job is the engine's internal record. gen increments on every replace so
// in-flight firings from a superseded trigger can be detected and dropped.
type job struct {
	id      string
	ownerID int64
	trig    trigger.Trigger
	next    time.Time
	gen     uint64
}

// firing is the internal queue element (Firing plus the generation stamp).
type firing struct {
	Firing
	gen uint64
}
