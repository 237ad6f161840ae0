package routine

import (
	"fmt"
	"strings"
	"time"
)

// Record is the flat storage and wire form of a routine. Every kind-specific
// field is present; the ones that do not belong to Kind are ignored.
type Record struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind"`
	Date        string `json:"date,omitempty"`
	Days        string `json:"days,omitempty"`
	Split       string `json:"split,omitempty"`
	Interval    int    `json:"interval,omitempty"`
	Anchor      string `json:"anchor,omitempty"`
	Policy      string `json:"policy,omitempty"`
	Reminder    string `json:"reminder,omitempty"`
}

// FromRecord converts a flat record into its sealed form and validates it.
func FromRecord(rec Record) (Routine, error) {
	kind, err := ParseKind(rec.Kind)
	if err != nil {
		return Routine{}, fmt.Errorf("routine %s: %w", rec.ID, err)
	}

	split := HolidaySplit(strings.ToLower(strings.TrimSpace(rec.Split)))
	if split != "" {
		switch kind {
		case KindNone, KindOnce, KindEveryXDays:
			return Routine{}, fmt.Errorf("routine %s: %w: %s", rec.ID, ErrUnsupportedCombination, kind)
		}
	}

	r := Routine{ID: rec.ID, Title: rec.Title, Description: rec.Description}

	if s := strings.TrimSpace(rec.Reminder); s != "" {
		c, err := ParseClock(s)
		if err != nil {
			return Routine{}, fmt.Errorf("routine %s: %w", rec.ID, err)
		}
		r.Reminder = &c
	}

	// Only the kinds that use an anchor parse it; a stray one is ignored.
	var anchor *Date
	switch kind {
	case KindWeekly, KindEveryXDays, KindWeekdayHoliday:
		if anchor, err = optionalDate(rec.Anchor); err != nil {
			return Routine{}, fmt.Errorf("routine %s: anchor: %w", rec.ID, err)
		}
	}

	switch kind {
	case KindNone, KindOnce:
		d, err := optionalDate(rec.Date)
		if err != nil {
			return Routine{}, fmt.Errorf("routine %s: date: %w", rec.ID, err)
		}
		o := Once{None: kind == KindNone}
		if d != nil {
			o.Date = *d
		}
		r.Repeat = o
	case KindWeekly:
		days, err := ParseWeekdays(rec.Days)
		if err != nil {
			return Routine{}, fmt.Errorf("routine %s: %w", rec.ID, err)
		}
		r.Repeat = Weekly{Days: days, Anchor: anchor}
	case KindEveryXDays:
		e := EveryXDays{Interval: rec.Interval, Policy: DayPolicy(strings.ToLower(strings.TrimSpace(rec.Policy)))}
		if anchor != nil {
			e.Anchor = *anchor
		}
		if e.Policy == "" {
			e.Policy = PolicyAny
		}
		r.Repeat = e
	case KindWeekdayHoliday:
		if split == "" {
			split = SplitWeekday
		}
		wh := NewWeekdayHoliday(split, anchor)
		if strings.TrimSpace(rec.Days) != "" {
			days, err := ParseWeekdays(rec.Days)
			if err != nil {
				return Routine{}, fmt.Errorf("routine %s: %w", rec.ID, err)
			}
			wh.Days = days
		}
		r.Repeat = wh
	}

	if err := r.Validate(); err != nil {
		return Routine{}, err
	}
	return r, nil
}

// ToRecord is the inverse of FromRecord.
func ToRecord(r Routine) Record {
	rec := Record{ID: r.ID, Title: r.Title, Description: r.Description, Kind: string(r.Kind())}
	if r.Reminder != nil {
		rec.Reminder = r.Reminder.String()
	}
	switch rep := r.Repeat.(type) {
	case Once:
		rec.Date = rep.Date.String()
	case Weekly:
		rec.Days = rep.Days.String()
		if rep.Anchor != nil {
			rec.Anchor = rep.Anchor.String()
		}
	case EveryXDays:
		rec.Interval = rep.Interval
		rec.Anchor = rep.Anchor.String()
		rec.Policy = string(rep.Policy)
	case WeekdayHoliday:
		rec.Split = string(rep.Split)
		rec.Days = rep.Days.String()
		if rep.Anchor != nil {
			rec.Anchor = rep.Anchor.String()
		}
	}
	return rec
}

func optionalDate(s string) (*Date, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// HolidayRecord is one day reported by a holiday source.
type HolidayRecord struct {
	Date      Date   `json:"date"`
	IsHoliday bool   `json:"is_holiday"`
	Name      string `json:"name,omitempty"`
}

// HolidayCacheEntry tracks when a month was last fetched.
type HolidayCacheEntry struct {
	Year          int
	Month         time.Month
	LastFetchedAt time.Time
}

// CompletionMark records whether a routine was done on a date.
type CompletionMark struct {
	RoutineID string `json:"routine_id"`
	Date      Date   `json:"date"`
	Done      bool   `json:"done"`
}
