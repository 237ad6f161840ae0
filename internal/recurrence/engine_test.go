package recurrence

import (
	"testing"
	"time"

	"routined/internal/routine"
)

func date(y int, m time.Month, d int) routine.Date { return routine.NewDate(y, m, d) }

func TestOnceExactMatch(t *testing.T) {
	t.Parallel()
	target := date(2025, time.June, 17)
	for _, none := range []bool{false, true} {
		r := routine.Routine{ID: "o", Repeat: routine.Once{Date: target, None: none}}
		for d := target.AddDays(-40); d.Before(target.AddDays(40)); d = d.AddDays(1) {
			if got, want := IsApplicable(r, d, nil), d == target; got != want {
				t.Fatalf("none=%v %s: got %v want %v", none, d, got, want)
			}
		}
	}
}

func TestWeeklyAnchor(t *testing.T) {
	t.Parallel()
	anchor := date(2024, time.July, 10) // Wednesday
	r := routine.Routine{ID: "w", Repeat: routine.Weekly{Days: routine.AllDays, Anchor: &anchor}}
	for d := anchor.AddDays(-21); d.Before(anchor); d = d.AddDays(1) {
		if IsApplicable(r, d, nil) {
			t.Fatalf("applicable before anchor on %s", d)
		}
	}
	if !IsApplicable(r, anchor, nil) {
		t.Fatal("should apply on anchor")
	}
}

func TestWeeklyDays(t *testing.T) {
	t.Parallel()
	r := routine.Routine{ID: "w", Repeat: routine.Weekly{Days: routine.NewWeekdaySet(1, 3, 5)}}
	// 2024-07-01 Monday .. 2024-07-07 Sunday
	want := map[int]bool{1: true, 2: false, 3: true, 4: false, 5: true, 6: false, 7: false}
	for day := 1; day <= 7; day++ {
		d := date(2024, time.July, day)
		if got := IsApplicable(r, d, nil); got != want[day] {
			t.Fatalf("%s: got %v", d, got)
		}
	}

	empty := routine.Routine{ID: "e", Repeat: routine.Weekly{}}
	if IsApplicable(empty, date(2024, time.July, 1), nil) {
		t.Fatal("empty weekday set must never apply")
	}
}

func TestEveryXDays(t *testing.T) {
	t.Parallel()
	r := routine.Routine{ID: "x", Repeat: routine.EveryXDays{Interval: 3, Anchor: date(2024, time.July, 1)}}
	cases := map[int]bool{1: true, 2: false, 3: false, 4: true, 5: false, 6: false, 7: true}
	for day, want := range cases {
		if got := IsApplicable(r, date(2024, time.July, day), nil); got != want {
			t.Fatalf("07-%02d: got %v want %v", day, got, want)
		}
	}
	if IsApplicable(r, date(2024, time.June, 28), nil) {
		t.Fatal("applicable before anchor")
	}
}

func TestEveryXDaysAcrossLeapDay(t *testing.T) {
	t.Parallel()
	r := routine.Routine{ID: "x", Repeat: routine.EveryXDays{Interval: 2, Anchor: date(2024, time.February, 27)}}
	if !IsApplicable(r, date(2024, time.February, 29), nil) {
		t.Fatal("2024-02-29 should apply")
	}
	if !IsApplicable(r, date(2024, time.March, 2), nil) {
		t.Fatal("2024-03-02 should apply")
	}
	if IsApplicable(r, date(2024, time.March, 1), nil) {
		t.Fatal("2024-03-01 should not apply")
	}
}

func TestEveryXDaysMalformed(t *testing.T) {
	t.Parallel()
	for _, rep := range []routine.EveryXDays{
		{Interval: 0, Anchor: date(2024, time.July, 1)},
		{Interval: -2, Anchor: date(2024, time.July, 1)},
		{Interval: 2},
	} {
		r := routine.Routine{ID: "bad", Repeat: rep}
		if IsApplicable(r, date(2024, time.July, 1), nil) || IsApplicable(r, date(2024, time.July, 3), nil) {
			t.Fatalf("malformed %+v applied", rep)
		}
	}
}

func TestEveryXDaysWeekdaysOnly(t *testing.T) {
	t.Parallel()
	// 2024-07-05 Fri, 07-06 Sat, 07-07 Sun
	r := routine.Routine{ID: "x", Repeat: routine.EveryXDays{Interval: 1, Anchor: date(2024, time.July, 5), Policy: routine.PolicyWeekdaysOnly}}
	h := NewSetLookup(date(2024, time.July, 8))
	want := map[int]bool{5: true, 6: false, 7: false, 8: false, 9: true}
	for day, w := range want {
		if got := IsApplicable(r, date(2024, time.July, day), h); got != w {
			t.Fatalf("07-%02d: got %v want %v", day, got, w)
		}
	}
}

func TestWeekdayHolidaySplit(t *testing.T) {
	t.Parallel()
	monday := date(2024, time.July, 1)
	tuesdayHoliday := date(2024, time.July, 2)
	saturday := date(2024, time.July, 6)
	sunday := date(2024, time.July, 7)
	h := NewSetLookup(tuesdayHoliday)

	weekday := routine.Routine{ID: "wd", Repeat: routine.NewWeekdayHoliday(routine.SplitWeekday, nil)}
	if !IsApplicable(weekday, monday, h) {
		t.Fatal("weekday side should apply on a regular Monday")
	}
	if IsApplicable(weekday, saturday, h) || IsApplicable(weekday, sunday, h) {
		t.Fatal("weekday side should not apply on the weekend")
	}
	if IsApplicable(weekday, tuesdayHoliday, h) {
		t.Fatal("weekday side should not apply on a holiday")
	}

	holiday := routine.Routine{ID: "hd", Repeat: routine.NewWeekdayHoliday(routine.SplitHoliday, nil)}
	if !IsApplicable(holiday, tuesdayHoliday, h) {
		t.Fatal("holiday side should apply on a holiday")
	}
	// Weekend-ness is not holiday-ness.
	if IsApplicable(holiday, saturday, h) || IsApplicable(holiday, monday, h) {
		t.Fatal("holiday side should only apply on looked-up holidays")
	}
	// Without holiday data every day is a regular day.
	if IsApplicable(holiday, tuesdayHoliday, nil) {
		t.Fatal("nil lookup must mean no holidays")
	}
}

func TestWeekdayHolidayAnchor(t *testing.T) {
	t.Parallel()
	anchor := date(2024, time.July, 3)
	r := routine.Routine{ID: "wd", Repeat: routine.NewWeekdayHoliday(routine.SplitWeekday, &anchor)}
	if IsApplicable(r, date(2024, time.July, 2), nil) {
		t.Fatal("applicable before anchor")
	}
	if !IsApplicable(r, anchor, nil) {
		t.Fatal("should apply on anchor")
	}
}

func TestExpandApplicable(t *testing.T) {
	t.Parallel()
	start, end := date(2024, time.July, 1), date(2024, time.July, 7)
	rs := []routine.Routine{
		{ID: "x", Repeat: routine.EveryXDays{Interval: 3, Anchor: start}},
		{ID: "o", Repeat: routine.Once{Date: date(2024, time.July, 4)}},
		{ID: "x", Repeat: routine.EveryXDays{Interval: 3, Anchor: start}},
	}
	got := ExpandApplicable(rs, start, end, nil)
	want := []Occurrence{
		{"x", date(2024, time.July, 1)},
		{"x", date(2024, time.July, 4)},
		{"o", date(2024, time.July, 4)},
		{"x", date(2024, time.July, 7)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if out := ExpandApplicable(rs, end, start, nil); out != nil {
		t.Fatalf("reversed range = %v", out)
	}
}

func TestDueOn(t *testing.T) {
	t.Parallel()
	rs := []routine.Routine{
		{ID: "a", Repeat: routine.Weekly{Days: routine.NewWeekdaySet(1)}},
		{ID: "b", Repeat: routine.Weekly{Days: routine.NewWeekdaySet(2)}},
		{ID: "c", Repeat: routine.Once{Date: date(2024, time.July, 1)}},
	}
	got := DueOn(rs, date(2024, time.July, 1), nil)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("got %v", got)
	}
}
