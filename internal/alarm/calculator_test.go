package alarm

import (
	"context"
	"testing"
	"time"

	"routined/internal/recurrence"
	"routined/internal/routine"
)

var seoul = time.FixedZone("KST", 9*3600)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, seoul)
}

func clock(h, m int) *routine.Clock { return &routine.Clock{Hour: h, Minute: m} }

func TestWeeklyNextTrigger(t *testing.T) {
	t.Parallel()
	r := routine.Routine{ID: "w", Repeat: routine.Weekly{Days: routine.NewWeekdaySet(1, 3, 5)}, Reminder: clock(8, 0)}
	// 2024-07-02 is a Tuesday.
	got, ok := NextTrigger(r, at(2024, time.July, 2, 9, 0), seoul, nil)
	if !ok || !got.Equal(at(2024, time.July, 3, 8, 0)) {
		t.Fatalf("got %v %v, want Wednesday 08:00", got, ok)
	}
}

func TestWeeklySameDayPassedWrapsAWeek(t *testing.T) {
	t.Parallel()
	r := routine.Routine{ID: "w", Repeat: routine.Weekly{Days: routine.NewWeekdaySet(1)}, Reminder: clock(8, 0)}
	got, ok := NextTrigger(r, at(2024, time.July, 1, 8, 0), seoul, nil)
	if !ok || !got.Equal(at(2024, time.July, 8, 8, 0)) {
		t.Fatalf("got %v %v", got, ok)
	}
	got, ok = NextTrigger(r, at(2024, time.July, 1, 7, 59), seoul, nil)
	if !ok || !got.Equal(at(2024, time.July, 1, 8, 0)) {
		t.Fatalf("got %v %v", got, ok)
	}
}

func TestOnceMissedIsNotRescheduled(t *testing.T) {
	t.Parallel()
	r := routine.Routine{ID: "o", Repeat: routine.Once{Date: routine.NewDate(2025, time.June, 17)}, Reminder: clock(7, 30)}
	if got, ok := NextTrigger(r, at(2025, time.June, 18, 0, 0), seoul, nil); ok {
		t.Fatalf("got %v, want none", got)
	}
	got, ok := NextTrigger(r, at(2025, time.June, 17, 7, 0), seoul, nil)
	if !ok || !got.Equal(at(2025, time.June, 17, 7, 30)) {
		t.Fatalf("got %v %v", got, ok)
	}
}

func TestNoReminder(t *testing.T) {
	t.Parallel()
	r := routine.Routine{ID: "n", Repeat: routine.Weekly{Days: routine.AllDays}}
	if _, ok := NextTrigger(r, at(2024, time.July, 1, 0, 0), seoul, nil); ok {
		t.Fatal("routine without reminder must have no trigger")
	}
}

func TestEveryXDaysJumpsWholeIntervals(t *testing.T) {
	t.Parallel()
	r := routine.Routine{ID: "x", Repeat: routine.EveryXDays{Interval: 3, Anchor: routine.NewDate(2024, time.July, 1)}, Reminder: clock(6, 0)}

	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{at(2024, time.June, 1, 12, 0), at(2024, time.July, 1, 6, 0)},
		{at(2024, time.July, 1, 5, 0), at(2024, time.July, 1, 6, 0)},
		{at(2024, time.July, 1, 6, 0), at(2024, time.July, 4, 6, 0)},
		{at(2024, time.July, 5, 23, 0), at(2024, time.July, 7, 6, 0)},
		{at(2025, time.July, 1, 7, 0), at(2025, time.July, 2, 6, 0)}, // 366 days after the anchor
	}
	for _, tc := range cases {
		got, ok := NextTrigger(r, tc.now, seoul, nil)
		if !ok || !got.Equal(tc.want) {
			t.Fatalf("now=%v: got %v %v, want %v", tc.now, got, ok, tc.want)
		}
	}
}

func TestEveryXDaysWeekdaysOnlySkipsWholeInterval(t *testing.T) {
	t.Parallel()
	// Anchor Friday 2024-07-05, every 8 days: 07-13 is a Saturday, 07-21 a Sunday, 07-29 a Monday.
	r := routine.Routine{ID: "x", Repeat: routine.EveryXDays{
		Interval: 8, Anchor: routine.NewDate(2024, time.July, 5), Policy: routine.PolicyWeekdaysOnly,
	}, Reminder: clock(9, 0)}
	got, ok := NextTrigger(r, at(2024, time.July, 6, 0, 0), seoul, nil)
	if !ok || !got.Equal(at(2024, time.July, 29, 9, 0)) {
		t.Fatalf("got %v %v, want 07-29 09:00", got, ok)
	}

	// A holiday on the boundary is skipped as well.
	h := recurrence.NewSetLookup(routine.NewDate(2024, time.July, 29))
	got, ok = NextTrigger(r, at(2024, time.July, 6, 0, 0), seoul, h)
	if !ok || !got.Equal(at(2024, time.August, 6, 9, 0)) {
		t.Fatalf("got %v %v, want 08-06 09:00", got, ok)
	}
}

func TestEveryXDaysWeekdaysOnlyGivesUp(t *testing.T) {
	t.Parallel()
	// Every 7 days from a Saturday never lands on a weekday.
	r := routine.Routine{ID: "x", Repeat: routine.EveryXDays{
		Interval: 7, Anchor: routine.NewDate(2024, time.July, 6), Policy: routine.PolicyWeekdaysOnly,
	}, Reminder: clock(9, 0)}
	if got, ok := NextTrigger(r, at(2024, time.July, 1, 0, 0), seoul, nil); ok {
		t.Fatalf("got %v, want none", got)
	}
}

func TestWeekdayHolidayUsesLookup(t *testing.T) {
	t.Parallel()
	r := routine.Routine{ID: "s", Repeat: routine.NewWeekdayHoliday(routine.SplitWeekday, nil), Reminder: clock(7, 0)}
	// Monday 2024-07-01 and Tuesday 07-02 are holidays here.
	h := recurrence.NewSetLookup(routine.NewDate(2024, time.July, 1), routine.NewDate(2024, time.July, 2))
	got, ok := NextTrigger(r, at(2024, time.June, 29, 10, 0), seoul, h) // Saturday
	if !ok || !got.Equal(at(2024, time.July, 3, 7, 0)) {
		t.Fatalf("got %v %v", got, ok)
	}

	hol := routine.Routine{ID: "h", Repeat: routine.NewWeekdayHoliday(routine.SplitHoliday, nil), Reminder: clock(10, 0)}
	if _, ok := NextTrigger(hol, at(2024, time.July, 3, 0, 0), seoul, h); ok {
		t.Fatal("no holiday within the horizon, want none")
	}
}

func TestMalformedRoutinesHaveNoTrigger(t *testing.T) {
	t.Parallel()
	now := at(2024, time.July, 1, 0, 0)
	for _, rep := range []routine.Repeat{
		routine.Once{},
		routine.Weekly{},
		routine.EveryXDays{Interval: 0, Anchor: routine.NewDate(2024, time.July, 1)},
		routine.EveryXDays{Interval: 2},
		routine.WeekdayHoliday{Split: "bogus", Days: routine.AllDays},
		nil,
	} {
		r := routine.Routine{ID: "bad", Repeat: rep, Reminder: clock(8, 0)}
		if got, ok := NextTrigger(r, now, seoul, nil); ok {
			t.Fatalf("%T: got %v", rep, got)
		}
	}
}

func TestNeverAtOrBeforeNow(t *testing.T) {
	t.Parallel()
	anchor := routine.NewDate(2024, time.February, 20)
	routines := []routine.Routine{
		{ID: "w", Repeat: routine.Weekly{Days: routine.NewWeekdaySet(2, 6)}, Reminder: clock(0, 0)},
		{ID: "x", Repeat: routine.EveryXDays{Interval: 5, Anchor: anchor}, Reminder: clock(23, 59)},
		{ID: "y", Repeat: routine.EveryXDays{Interval: 2, Anchor: anchor, Policy: routine.PolicyWeekdaysOnly}, Reminder: clock(12, 0)},
		{ID: "s", Repeat: routine.NewWeekdayHoliday(routine.SplitWeekday, &anchor), Reminder: clock(12, 30)},
		{ID: "o", Repeat: routine.Once{Date: routine.NewDate(2024, time.March, 1)}, Reminder: clock(12, 0)},
	}
	h := recurrence.NewSetLookup(routine.NewDate(2024, time.March, 1))
	start := at(2024, time.February, 25, 0, 0)
	for step := 0; step < 24*14; step++ {
		now := start.Add(time.Duration(step) * 37 * time.Minute)
		for _, r := range routines {
			if got, ok := NextTrigger(r, now, seoul, h); ok && !got.After(now) {
				t.Fatalf("%s at %v returned %v", r.ID, now, got)
			}
		}
	}
}

type countingProvider struct {
	calls int
	h     recurrence.HolidayLookup
}

func (p *countingProvider) HolidayLookup(context.Context, routine.Date, routine.Date) recurrence.HolidayLookup {
	p.calls++
	return p.h
}

func TestCalculatorLoadsHolidayMonthsLazily(t *testing.T) {
	t.Parallel()
	p := &countingProvider{h: recurrence.NoHolidays}
	c := NewCalculator(seoul, p)

	weekly := routine.Routine{ID: "w", Repeat: routine.Weekly{Days: routine.AllDays}, Reminder: clock(8, 0)}
	if _, ok := c.NextTriggerTime(context.Background(), weekly, at(2024, time.July, 1, 9, 0)); !ok {
		t.Fatal("expected a trigger")
	}
	if p.calls != 0 {
		t.Fatalf("weekly routine fetched holidays %d times", p.calls)
	}

	split := routine.Routine{ID: "s", Repeat: routine.NewWeekdayHoliday(routine.SplitWeekday, nil), Reminder: clock(8, 0)}
	// Wednesday 2024-07-31 after 08:00: the next hit is in August.
	if _, ok := c.NextTriggerTime(context.Background(), split, at(2024, time.July, 31, 9, 0)); !ok {
		t.Fatal("expected a trigger")
	}
	if p.calls != 2 {
		t.Fatalf("provider calls = %d, want 2 (July and August)", p.calls)
	}
}
