package wakeup

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// EventReminderFired is published on the bus when a reminder alarm goes off.
const EventReminderFired = "reminder.fired"

// DefaultLateGrace is how late an alarm may still fire after a Start.
const DefaultLateGrace = time.Minute

// FiredEvent is the Data of an EventReminderFired event.
type FiredEvent struct {
	RoutineID string
	At        time.Time // registered trigger time
	FiredAt   time.Time
}

// Late reports how far behind its registered time the alarm fired.
func (e FiredEvent) Late() time.Duration {
	if e.FiredAt.Before(e.At) {
		return 0
	}
	return e.FiredAt.Sub(e.At)
}

type Config struct {
	Timezone  string        // IANA name; empty means time.Local
	LateGrace time.Duration // alarms further overdue on Start are dropped
}

// Alarm is a pending reminder alarm.
type Alarm struct {
	RoutineID string
	At        time.Time
	Armed     bool
}

// Job is a registered daily housekeeping job.
type Job struct {
	Name    string
	At      string // HH:MM
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Running  bool
	Timezone string
	Alarms   []Alarm
	Jobs     []Job
	Fired    uint64
	Dropped  uint64
}

type jobDef struct {
	name    string
	at      string
	spec    string
	timeout time.Duration
	run     func(ctx context.Context) error
	entryID cron.EntryID
}

type alarmDef struct {
	at  time.Time
	ver uint64
}
