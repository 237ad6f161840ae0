// Package report summarises how well routines were kept over a week or month.
package report

import (
	"fmt"
	"strings"

	"routined/internal/recurrence"
	"routined/internal/routine"
)

type Period int

const (
	Weekly Period = iota
	Monthly
)

func (p Period) String() string {
	switch p {
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return fmt.Sprintf("period(%d)", int(p))
	}
}

func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "week", "weekly":
		return Weekly, nil
	case "month", "monthly":
		return Monthly, nil
	default:
		return 0, fmt.Errorf("unknown period %q", s)
	}
}

// Window returns the Monday..Sunday week or the calendar month containing selected.
func Window(p Period, selected routine.Date) (start, end routine.Date) {
	if p == Monthly {
		return routine.MonthBounds(selected.Year, selected.Month)
	}
	start = selected.AddDays(1 - selected.Weekday())
	return start, start.AddDays(6)
}

// RoutineStats is one routine's counts over the evaluated days.
type RoutineStats struct {
	RoutineID string
	Title     string
	Expected  int
	Completed int
}

func (s RoutineStats) Missed() int { return s.Expected - s.Completed }

// Highlight names a routine and its count. A zero Highlight means none.
type Highlight struct {
	RoutineID string
	Title     string
	Count     int
}

func (h Highlight) IsZero() bool { return h.RoutineID == "" }

func (h Highlight) String() string {
	if h.IsZero() {
		return "N/A"
	}
	return fmt.Sprintf("%s (%d)", h.Title, h.Count)
}

type Report struct {
	Period     Period
	Start      routine.Date
	End        routine.Date
	Through    routine.Date // last evaluated day; zero when the window is in the future
	Expected   int
	Completed  int
	Rate       float64
	MostKept   Highlight
	MostMissed Highlight
	Routines   []RoutineStats
}

// Build evaluates the window containing selected, skipping days after today.
// A done mark counts only on a day its routine was applicable.
func Build(routines []routine.Routine, marks []routine.CompletionMark, p Period, selected, today routine.Date, h recurrence.HolidayLookup) Report {
	start, end := Window(p, selected)
	rep := Report{Period: p, Start: start, End: end}

	done := make(map[routine.Date]map[string]bool)
	for _, m := range marks {
		if !m.Done || m.Date.Before(start) || m.Date.After(end) {
			continue
		}
		if done[m.Date] == nil {
			done[m.Date] = map[string]bool{}
		}
		done[m.Date][m.RoutineID] = true
	}

	stats := make([]RoutineStats, len(routines))
	for i, r := range routines {
		stats[i] = RoutineStats{RoutineID: r.ID, Title: r.Title}
	}

	last := end
	if today.Before(last) {
		last = today
	}
	for d := start; !d.After(last); d = d.AddDays(1) {
		rep.Through = d
		for i, r := range routines {
			if !recurrence.IsApplicable(r, d, h) {
				continue
			}
			stats[i].Expected++
			if done[d][r.ID] {
				stats[i].Completed++
			}
		}
	}

	for _, s := range stats {
		rep.Expected += s.Expected
		rep.Completed += s.Completed
		if s.Completed > rep.MostKept.Count {
			rep.MostKept = Highlight{RoutineID: s.RoutineID, Title: s.Title, Count: s.Completed}
		}
		if s.Missed() > rep.MostMissed.Count {
			rep.MostMissed = Highlight{RoutineID: s.RoutineID, Title: s.Title, Count: s.Missed()}
		}
	}
	if rep.Expected > 0 {
		rep.Rate = float64(rep.Completed) / float64(rep.Expected)
	}
	rep.Routines = stats
	return rep
}
