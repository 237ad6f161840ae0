// Package recurrence decides on which dates a routine is due.
//
// Everything here is a pure function of its inputs. Holiday facts come from an
// injected HolidayLookup so callers decide how (and whether) to consult the
// holiday cache.
package recurrence

import (
	"routined/internal/routine"
)

// HolidayLookup answers whether a date is a public holiday. Unknown dates
// must answer false.
type HolidayLookup interface {
	IsHoliday(d routine.Date) bool
}

// LookupFunc adapts a plain function to HolidayLookup.
type LookupFunc func(d routine.Date) bool

func (f LookupFunc) IsHoliday(d routine.Date) bool {
	if f == nil {
		return false
	}
	return f(d)
}

// NoHolidays treats every day as a regular day.
var NoHolidays HolidayLookup = LookupFunc(func(routine.Date) bool { return false })

// SetLookup is a HolidayLookup over an explicit set of dates.
type SetLookup map[routine.Date]struct{}

func NewSetLookup(days ...routine.Date) SetLookup {
	s := make(SetLookup, len(days))
	for _, d := range days {
		s[d] = struct{}{}
	}
	return s
}

func (s SetLookup) IsHoliday(d routine.Date) bool {
	_, ok := s[d]
	return ok
}

// IsApplicable reports whether r is due on d. A nil lookup behaves as
// NoHolidays. Malformed routines are never applicable.
func IsApplicable(r routine.Routine, d routine.Date, h HolidayLookup) bool {
	if h == nil {
		h = NoHolidays
	}
	switch rep := r.Repeat.(type) {
	case routine.Once:
		return !rep.Date.IsZero() && d == rep.Date
	case routine.Weekly:
		if rep.Anchor != nil && d.Before(*rep.Anchor) {
			return false
		}
		return rep.Days.Has(d.Weekday())
	case routine.EveryXDays:
		if !onInterval(rep, d) {
			return false
		}
		if rep.Policy == routine.PolicyWeekdaysOnly && excludedWeekday(d, h) {
			return false
		}
		return true
	case routine.WeekdayHoliday:
		if rep.Anchor != nil && d.Before(*rep.Anchor) {
			return false
		}
		if !rep.Days.Has(d.Weekday()) {
			return false
		}
		holiday := h.IsHoliday(d)
		switch rep.Split {
		case routine.SplitWeekday:
			return !holiday
		case routine.SplitHoliday:
			return holiday
		}
		return false
	default:
		return false
	}
}

func onInterval(rep routine.EveryXDays, d routine.Date) bool {
	if rep.Interval <= 0 || rep.Anchor.IsZero() || d.Before(rep.Anchor) {
		return false
	}
	return d.DaysSince(rep.Anchor)%rep.Interval == 0
}

// excludedWeekday is the weekdays_only policy: weekends and holidays are out.
func excludedWeekday(d routine.Date, h HolidayLookup) bool {
	return d.Weekday() >= 6 || h.IsHoliday(d)
}

// Excluded reports whether the weekdays_only policy would drop d.
func Excluded(rep routine.EveryXDays, d routine.Date, h HolidayLookup) bool {
	if h == nil {
		h = NoHolidays
	}
	return rep.Policy == routine.PolicyWeekdaysOnly && excludedWeekday(d, h)
}

// Occurrence is one (routine, date) pair.
type Occurrence struct {
	RoutineID string
	Date      routine.Date
}

// ExpandApplicable lists every applicable (routine, date) pair in [start, end],
// ordered by date and then by input order. Duplicate routine IDs collapse.
func ExpandApplicable(routines []routine.Routine, start, end routine.Date, h HolidayLookup) []Occurrence {
	if end.Before(start) {
		return nil
	}
	seen := make(map[Occurrence]struct{})
	var out []Occurrence
	for d := start; !d.After(end); d = d.AddDays(1) {
		for _, r := range routines {
			if !IsApplicable(r, d, h) {
				continue
			}
			o := Occurrence{RoutineID: r.ID, Date: d}
			if _, dup := seen[o]; dup {
				continue
			}
			seen[o] = struct{}{}
			out = append(out, o)
		}
	}
	return out
}

// DueOn returns the routines applicable on d, in input order.
func DueOn(routines []routine.Routine, d routine.Date, h HolidayLookup) []routine.Routine {
	var out []routine.Routine
	for _, r := range routines {
		if IsApplicable(r, d, h) {
			out = append(out, r)
		}
	}
	return out
}
