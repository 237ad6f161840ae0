// Package alarm turns routines into concrete wake-up times and keeps one
// pending registration per routine on an external one-shot alarm port.
package alarm

import (
	"context"
	"sync"
	"time"

	"routined/internal/recurrence"
	"routined/internal/routine"
)

// weeklyHorizon covers today plus a full week, so a routine due today whose
// time has already passed is found again seven days later.
const weeklyHorizon = 8

// maxIntervalSkips bounds how many whole intervals an every_x_days routine may
// skip under the weekdays_only policy before giving up.
const maxIntervalSkips = 8

// LookupProvider supplies holiday facts for a date range.
type LookupProvider interface {
	HolidayLookup(ctx context.Context, start, end routine.Date) recurrence.HolidayLookup
}

// FixedLookup serves the same lookup for every range.
type FixedLookup struct {
	Lookup recurrence.HolidayLookup
}

func (f FixedLookup) HolidayLookup(context.Context, routine.Date, routine.Date) recurrence.HolidayLookup {
	if f.Lookup == nil {
		return recurrence.NoHolidays
	}
	return f.Lookup
}

// Calculator computes next trigger times in a fixed location.
type Calculator struct {
	loc     *time.Location
	lookups LookupProvider
}

// NewCalculator uses time.Local when loc is nil and no holidays when lookups is nil.
func NewCalculator(loc *time.Location, lookups LookupProvider) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	if lookups == nil {
		lookups = FixedLookup{}
	}
	return &Calculator{loc: loc, lookups: lookups}
}

func (c *Calculator) Location() *time.Location { return c.loc }

// NextTriggerTime returns the first trigger strictly after now. Holiday months
// are loaded from the provider only when the search actually asks about them.
func (c *Calculator) NextTriggerTime(ctx context.Context, r routine.Routine, now time.Time) (time.Time, bool) {
	h := &monthLookup{ctx: ctx, provider: c.lookups, months: map[monthKey]recurrence.HolidayLookup{}}
	return NextTrigger(r, now, c.loc, h)
}

// NextTrigger is the pure form of Calculator.NextTriggerTime. It never returns a
// time at or before now, and reports false for routines without a reminder or
// without any future occurrence in the search horizon.
func NextTrigger(r routine.Routine, now time.Time, loc *time.Location, h recurrence.HolidayLookup) (time.Time, bool) {
	if r.Reminder == nil || r.Reminder.Hour < 0 || r.Reminder.Hour > 23 || r.Reminder.Minute < 0 || r.Reminder.Minute > 59 {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	if h == nil {
		h = recurrence.NoHolidays
	}
	at := *r.Reminder
	today := routine.Today(now, loc)

	switch rep := r.Repeat.(type) {
	case routine.Once:
		if rep.Date.IsZero() {
			return time.Time{}, false
		}
		if t := rep.Date.At(at, loc); t.After(now) {
			return t, true
		}
		return time.Time{}, false

	case routine.Weekly, routine.WeekdayHoliday:
		for i := 0; i < weeklyHorizon; i++ {
			d := today.AddDays(i)
			if !recurrence.IsApplicable(r, d, h) {
				continue
			}
			if t := d.At(at, loc); t.After(now) {
				return t, true
			}
		}
		return time.Time{}, false

	case routine.EveryXDays:
		if rep.Interval <= 0 || rep.Anchor.IsZero() {
			return time.Time{}, false
		}
		cand := rep.Anchor
		if today.After(rep.Anchor) {
			cand = rep.Anchor.AddDays(today.DaysSince(rep.Anchor) / rep.Interval * rep.Interval)
		}
		// At most two steps: cand is on or before today here.
		for !cand.At(at, loc).After(now) {
			cand = cand.AddDays(rep.Interval)
		}
		// An excluded boundary moves to the next boundary, not to the next day.
		for skips := 0; recurrence.Excluded(rep, cand, h); skips++ {
			if skips >= maxIntervalSkips {
				return time.Time{}, false
			}
			cand = cand.AddDays(rep.Interval)
		}
		return cand.At(at, loc), true

	default:
		return time.Time{}, false
	}
}

type monthKey struct {
	year  int
	month time.Month
}

// monthLookup asks the provider one month at a time, on first use.
type monthLookup struct {
	ctx      context.Context
	provider LookupProvider

	mu     sync.Mutex
	months map[monthKey]recurrence.HolidayLookup
}

func (m *monthLookup) IsHoliday(d routine.Date) bool {
	key := monthKey{year: d.Year, month: d.Month}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.months[key]
	if !ok {
		first, last := routine.MonthBounds(d.Year, d.Month)
		h = m.provider.HolidayLookup(m.ctx, first, last)
		if h == nil {
			h = recurrence.NoHolidays
		}
		m.months[key] = h
	}
	return h.IsHoliday(d)
}
