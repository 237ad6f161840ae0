package routine

import (
	"errors"
	"testing"
	"time"
)

func TestDateArithmetic(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		from Date
		add  int
		want Date
	}{
		{"leap day", NewDate(2024, time.February, 28), 1, NewDate(2024, time.February, 29)},
		{"after leap day", NewDate(2024, time.February, 29), 1, NewDate(2024, time.March, 1)},
		{"non leap", NewDate(2023, time.February, 28), 1, NewDate(2023, time.March, 1)},
		{"year end", NewDate(2024, time.December, 31), 1, NewDate(2025, time.January, 1)},
		{"backwards", NewDate(2024, time.March, 1), -1, NewDate(2024, time.February, 29)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.from.AddDays(tc.add); got != tc.want {
				t.Fatalf("%s + %d = %s, want %s", tc.from, tc.add, got, tc.want)
			}
			if got := tc.want.DaysSince(tc.from); got != tc.add {
				t.Fatalf("DaysSince = %d, want %d", got, tc.add)
			}
		})
	}
}

func TestDaysSinceLongSpans(t *testing.T) {
	t.Parallel()
	cases := []struct {
		from, to Date
		want     int
	}{
		{NewDate(1700, time.January, 1), NewDate(2026, time.October, 17), 119358},
		{NewDate(1, time.January, 1), NewDate(2001, time.January, 1), 730485},
		{NewDate(2026, time.October, 17), NewDate(1700, time.January, 1), -119358},
	}
	for _, tc := range cases {
		if got := tc.to.DaysSince(tc.from); got != tc.want {
			t.Fatalf("%s - %s = %d, want %d", tc.to, tc.from, got, tc.want)
		}
	}
}

func TestDateWeekdayAndBounds(t *testing.T) {
	t.Parallel()
	// 2024-07-01 is a Monday.
	if wd := NewDate(2024, time.July, 1).Weekday(); wd != 1 {
		t.Fatalf("weekday = %d, want 1", wd)
	}
	if wd := NewDate(2024, time.July, 7).Weekday(); wd != 7 {
		t.Fatalf("weekday = %d, want 7", wd)
	}
	first, last := MonthBounds(2024, time.February)
	if first != NewDate(2024, time.February, 1) || last != NewDate(2024, time.February, 29) {
		t.Fatalf("bounds = %s..%s", first, last)
	}
}

func TestYYYYMMDD(t *testing.T) {
	t.Parallel()
	d, err := FromYYYYMMDD(20250815)
	if err != nil {
		t.Fatal(err)
	}
	if d != NewDate(2025, time.August, 15) || d.YYYYMMDD() != 20250815 {
		t.Fatalf("got %s", d)
	}
	for _, bad := range []int{20250230, 20251301, 123, 0} {
		if _, err := FromYYYYMMDD(bad); err == nil {
			t.Fatalf("FromYYYYMMDD(%d) should fail", bad)
		}
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	c, err := ParseClock(" 07:30 ")
	if err != nil || c != (Clock{Hour: 7, Minute: 30}) {
		t.Fatalf("ParseClock = %v, %v", c, err)
	}
	for _, bad := range []string{"24:00", "7", "07:60", "aa:bb"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q) should fail", bad)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	anchor := NewDate(2024, time.July, 1)

	cases := []struct {
		name   string
		repeat Repeat
		want   error
	}{
		{"once ok", Once{Date: anchor}, nil},
		{"once no date", Once{}, ErrMissingDate},
		{"weekly empty", Weekly{}, ErrEmptyWeekdays},
		{"interval zero", EveryXDays{Interval: 0, Anchor: anchor}, ErrInvalidInterval},
		{"interval negative", EveryXDays{Interval: -3, Anchor: anchor}, ErrInvalidInterval},
		{"interval no anchor", EveryXDays{Interval: 2}, ErrMissingAnchor},
		{"split unknown", WeekdayHoliday{Split: "weekend", Days: AllDays}, ErrUnknownSplit},
		{"split empty days", WeekdayHoliday{Split: SplitHoliday}, ErrEmptyWeekdays},
		{"nil repeat", nil, ErrMissingRepeat},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New("r1", "title", tc.repeat, nil)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestFromRecordRejectsSplitCombination(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"none", "once", "every_x_days"} {
		_, err := FromRecord(Record{ID: "x", Kind: kind, Split: "holiday", Date: "2024-07-01", Anchor: "2024-07-01", Interval: 2})
		if !errors.Is(err, ErrUnsupportedCombination) {
			t.Fatalf("kind %s: err = %v, want ErrUnsupportedCombination", kind, err)
		}
	}
}

func TestFromRecordIgnoresForeignFields(t *testing.T) {
	t.Parallel()
	r, err := FromRecord(Record{
		ID: "w", Kind: "weekly", Days: "1,3,5", Interval: 9, Date: "2020-01-01", Reminder: "08:00",
	})
	if err != nil {
		t.Fatal(err)
	}
	w, ok := r.Repeat.(Weekly)
	if !ok {
		t.Fatalf("repeat = %T", r.Repeat)
	}
	if w.Days != NewWeekdaySet(1, 3, 5) || w.Anchor != nil {
		t.Fatalf("weekly = %+v", w)
	}
	if r.Reminder == nil || *r.Reminder != (Clock{Hour: 8}) {
		t.Fatalf("reminder = %v", r.Reminder)
	}
}

func TestFromRecordIgnoresStrayAnchor(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"once", "none"} {
		r, err := FromRecord(Record{ID: "o", Kind: kind, Date: "2025-06-17", Anchor: "not-a-date"})
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if o, ok := r.Repeat.(Once); !ok || o.Date != NewDate(2025, time.June, 17) {
			t.Fatalf("%s: repeat = %+v", kind, r.Repeat)
		}
	}
	if _, err := FromRecord(Record{ID: "w", Kind: "weekly", Days: "1", Anchor: "not-a-date"}); err == nil {
		t.Fatal("weekly should reject a malformed anchor")
	}
}

func TestFromRecordInvalidWeekday(t *testing.T) {
	t.Parallel()
	_, err := FromRecord(Record{ID: "w", Kind: "weekly", Days: "1,8"})
	if !errors.Is(err, ErrInvalidWeekday) {
		t.Fatalf("err = %v", err)
	}
}

func TestWeekdayHolidayDefaults(t *testing.T) {
	t.Parallel()
	r, err := FromRecord(Record{ID: "s", Kind: "weekday_holiday", Split: "weekday"})
	if err != nil {
		t.Fatal(err)
	}
	if wh := r.Repeat.(WeekdayHoliday); wh.Days != Weekdays {
		t.Fatalf("weekday side days = %s", wh.Days)
	}
	r, err = FromRecord(Record{ID: "h", Kind: "weekday_holiday", Split: "holiday"})
	if err != nil {
		t.Fatal(err)
	}
	if wh := r.Repeat.(WeekdayHoliday); wh.Days != AllDays {
		t.Fatalf("holiday side days = %s", wh.Days)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()
	anchor := NewDate(2024, time.July, 1)
	rem := Clock{Hour: 6, Minute: 45}
	in := []Routine{
		{ID: "a", Title: "A", Repeat: Once{Date: anchor, None: true}},
		{ID: "b", Title: "B", Repeat: Weekly{Days: NewWeekdaySet(2, 4), Anchor: &anchor}, Reminder: &rem},
		{ID: "c", Title: "C", Repeat: EveryXDays{Interval: 3, Anchor: anchor, Policy: PolicyWeekdaysOnly}},
		{ID: "d", Title: "D", Repeat: WeekdayHoliday{Split: SplitHoliday, Days: NewWeekdaySet(6, 7)}},
	}
	for _, r := range in {
		got, err := FromRecord(ToRecord(r))
		if err != nil {
			t.Fatalf("%s: %v", r.ID, err)
		}
		if ToRecord(got) != ToRecord(r) {
			t.Fatalf("%s: round trip %+v != %+v", r.ID, ToRecord(got), ToRecord(r))
		}
	}
}
