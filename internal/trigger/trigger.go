// Package trigger compiles a reminder's (time-of-day, recurrence, zone)
// tuple into a schedulable trigger. Compilation is pure: it never touches
// storage or the engine, so a failed compile has no side effects.
package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/reminder"
)

type Kind int

const (
	KindOnce Kind = iota
	KindCron
)

// Trigger is a compiled firing rule. Once triggers carry an absolute
// instant; cron triggers carry a parsed schedule with the owner zone
// baked into the spec (CRON_TZ prefix), so Next() is DST-correct.
type Trigger struct {
	Kind     Kind
	At       time.Time
	Spec     string
	Schedule cron.Schedule
	Location *time.Location
}

func (t Trigger) IsZero() bool {
	return t.Schedule == nil && t.At.IsZero()
}

// Next returns the first fire instant at or after now, or the zero time
// when the trigger is exhausted (a once trigger whose instant has passed).
func (t Trigger) Next(now time.Time) time.Time {
	switch t.Kind {
	case KindOnce:
		if !t.At.Before(now) {
			return t.At
		}
		return time.Time{}
	case KindCron:
		if t.Schedule == nil {
			return time.Time{}
		}
		return t.Schedule.Next(now)
	}
	return time.Time{}
}

// Compile builds a Trigger for the given wall-clock time, recurrence and
// IANA zone, evaluated at now.
//
// Once: the next occurrence of HH:MM in the zone that is >= now; if today's
// occurrence already passed, exactly one calendar day forward with the wall
// clock re-anchored (so a DST shift between now and the target cannot skew
// the local time). The result is always within [now, now+24h].
//
// Recurring: a standard 5-field cron spec restricted to the recurrence's
// day-of-week set, prefixed with CRON_TZ so robfig/cron evaluates it in the
// owner zone.
func Compile(tod reminder.TimeOfDay, rec reminder.Recurrence, zone string, now time.Time) (Trigger, error) {
	if !tod.Valid() {
		return Trigger{}, fmt.Errorf("%w: time %s out of range", reminder.ErrValidation, tod)
	}
	if !rec.Valid() {
		return Trigger{}, fmt.Errorf("%w: unknown recurrence %q", reminder.ErrValidation, rec)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Trigger{}, fmt.Errorf("%w: unknown timezone %q", reminder.ErrValidation, zone)
	}

	if rec.IsOnce() {
		local := now.In(loc)
		at := time.Date(local.Year(), local.Month(), local.Day(), tod.Hour, tod.Minute, 0, 0, loc)
		if at.Before(now) {
			at = time.Date(local.Year(), local.Month(), local.Day()+1, tod.Hour, tod.Minute, 0, 0, loc)
		}
		return Trigger{Kind: KindOnce, At: at, Location: loc}, nil
	}

	spec := fmt.Sprintf("CRON_TZ=%s %d %d * * %s", zone, tod.Minute, tod.Hour, rec.DaySet())
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return Trigger{}, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return Trigger{Kind: KindCron, Spec: spec, Schedule: sched, Location: loc}, nil
}
