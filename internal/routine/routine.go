package routine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the string form of a repeat variant, as stored and configured.
type Kind string

const (
	KindNone           Kind = "none"
	KindOnce           Kind = "once"
	KindWeekly         Kind = "weekly"
	KindEveryXDays     Kind = "every_x_days"
	KindWeekdayHoliday Kind = "weekday_holiday"
)

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindNone, KindOnce, KindWeekly, KindEveryXDays, KindWeekdayHoliday:
		return k, nil
	case "":
		return KindNone, nil
	}
	return "", fmt.Errorf("unknown repeat kind %q", s)
}

// HolidaySplit selects which side of the weekday/holiday partition a routine belongs to.
type HolidaySplit string

const (
	SplitWeekday HolidaySplit = "weekday"
	SplitHoliday HolidaySplit = "holiday"
)

func (s HolidaySplit) valid() bool { return s == SplitWeekday || s == SplitHoliday }

// DayPolicy restricts an EveryXDays cycle.
type DayPolicy string

const (
	PolicyAny          DayPolicy = "any"
	PolicyWeekdaysOnly DayPolicy = "weekdays_only"
)

func (p DayPolicy) valid() bool { return p == "" || p == PolicyAny || p == PolicyWeekdaysOnly }

// WeekdaySet is a set of ISO weekdays (1=Monday .. 7=Sunday) stored as a bitmask.
type WeekdaySet uint8

const (
	Weekdays WeekdaySet = 0b0011111 // Mon..Fri
	AllDays  WeekdaySet = 0b1111111
)

// NewWeekdaySet ignores numbers outside 1..7; use ParseWeekdays to reject them.
func NewWeekdaySet(days ...int) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		if d >= 1 && d <= 7 {
			s |= 1 << (d - 1)
		}
	}
	return s
}

// ParseWeekdays accepts a comma separated list such as "1,3,5".
func ParseWeekdays(s string) (WeekdaySet, error) {
	var out WeekdaySet
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, part)
		}
		if n < 1 || n > 7 {
			return 0, fmt.Errorf("%w: %d", ErrInvalidWeekday, n)
		}
		out |= 1 << (n - 1)
	}
	return out, nil
}

func (s WeekdaySet) Has(weekday int) bool {
	if weekday < 1 || weekday > 7 {
		return false
	}
	return s&(1<<(weekday-1)) != 0
}

func (s WeekdaySet) Empty() bool { return s&AllDays == 0 }

// Days lists the members in ascending order.
func (s WeekdaySet) Days() []int {
	out := make([]int, 0, 7)
	for d := 1; d <= 7; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s WeekdaySet) String() string {
	days := s.Days()
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// Repeat is the sealed set of recurrence rules. The concrete variants are
// Once, Weekly, EveryXDays and WeekdayHoliday.
type Repeat interface {
	Kind() Kind
	isRepeat()
}

// Once fires on a single date. None marks the stored "none" kind; it
// behaves exactly like Once.
type Once struct {
	Date Date
	None bool
}

type Weekly struct {
	Days   WeekdaySet
	Anchor *Date
}

type EveryXDays struct {
	Interval int
	Anchor   Date
	Policy   DayPolicy
}

type WeekdayHoliday struct {
	Split  HolidaySplit
	Days   WeekdaySet
	Anchor *Date
}

func (o Once) Kind() Kind {
	if o.None {
		return KindNone
	}
	return KindOnce
}
func (Weekly) Kind() Kind         { return KindWeekly }
func (EveryXDays) Kind() Kind     { return KindEveryXDays }
func (WeekdayHoliday) Kind() Kind { return KindWeekdayHoliday }

func (Once) isRepeat()           {}
func (Weekly) isRepeat()         {}
func (EveryXDays) isRepeat()     {}
func (WeekdayHoliday) isRepeat() {}

// NewWeekdayHoliday builds a split rule with the default day set for its side:
// Mon..Fri for the weekday side, every day for the holiday side.
func NewWeekdayHoliday(split HolidaySplit, anchor *Date) WeekdayHoliday {
	days := AllDays
	if split == SplitWeekday {
		days = Weekdays
	}
	return WeekdayHoliday{Split: split, Days: days, Anchor: anchor}
}

// Routine is an immutable routine definition. Copy it to change it.
type Routine struct {
	ID          string
	Title       string
	Description string
	Repeat      Repeat
	Reminder    *Clock
}

// New validates the routine before returning it.
func New(id, title string, repeat Repeat, reminder *Clock) (Routine, error) {
	r := Routine{ID: id, Title: title, Repeat: repeat, Reminder: reminder}
	if err := r.Validate(); err != nil {
		return Routine{}, err
	}
	return r, nil
}

func (r Routine) Kind() Kind {
	if r.Repeat == nil {
		return ""
	}
	return r.Repeat.Kind()
}

func (r Routine) HasReminder() bool { return r.Reminder != nil }

func (r Routine) String() string {
	return fmt.Sprintf("%s(%s)", r.ID, r.Kind())
}

// Validate reports configuration errors. Evaluation never calls it: a malformed
// routine is simply never applicable.
func (r Routine) Validate() error {
	if r.Reminder != nil && !r.Reminder.valid() {
		return fmt.Errorf("routine %s: invalid reminder %s", r.ID, r.Reminder)
	}
	switch rep := r.Repeat.(type) {
	case Once:
		if rep.Date.IsZero() {
			return fmt.Errorf("routine %s: %w", r.ID, ErrMissingDate)
		}
	case Weekly:
		if rep.Days.Empty() {
			return fmt.Errorf("routine %s: %w", r.ID, ErrEmptyWeekdays)
		}
	case EveryXDays:
		if rep.Interval <= 0 {
			return fmt.Errorf("routine %s: %w: %d", r.ID, ErrInvalidInterval, rep.Interval)
		}
		if rep.Anchor.IsZero() {
			return fmt.Errorf("routine %s: %w", r.ID, ErrMissingAnchor)
		}
		if !rep.Policy.valid() {
			return fmt.Errorf("routine %s: unknown day policy %q", r.ID, rep.Policy)
		}
	case WeekdayHoliday:
		if !rep.Split.valid() {
			return fmt.Errorf("routine %s: %w: %q", r.ID, ErrUnknownSplit, rep.Split)
		}
		if rep.Days.Empty() {
			return fmt.Errorf("routine %s: %w", r.ID, ErrEmptyWeekdays)
		}
	case nil:
		return fmt.Errorf("routine %s: %w", r.ID, ErrMissingRepeat)
	default:
		return fmt.Errorf("routine %s: unsupported repeat %T", r.ID, rep)
	}
	return nil
}

// SortByID orders routines by ID in place.
func SortByID(rs []Routine) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}
