package holiday

import (
	"context"

	"routined/internal/recurrence"
	"routined/internal/routine"
)

// Calendar builds recurrence lookups from the cache.
type Calendar struct {
	cache *Cache
}

func NewCalendar(c *Cache) *Calendar { return &Calendar{cache: c} }

// Lookup loads every month touched by [start, end] and returns a set lookup.
// Months that could not be loaded contribute no holidays; their results say why.
func (c *Calendar) Lookup(ctx context.Context, start, end routine.Date) (recurrence.HolidayLookup, []Result) {
	set := recurrence.NewSetLookup()
	if c == nil || c.cache == nil {
		return set, nil
	}
	months := MonthsBetween(start, end)
	results := make([]Result, 0, len(months))
	for _, m := range months {
		res, err := c.cache.GetMonthHolidays(ctx, m.Year, m.Month)
		if err != nil {
			continue
		}
		results = append(results, res)
		for _, rec := range res.Records {
			if rec.IsHoliday {
				set[rec.Date] = struct{}{}
			}
		}
	}
	return set, results
}

// HolidayLookup is Lookup without the per-month results; degraded months count
// as having no holidays.
func (c *Calendar) HolidayLookup(ctx context.Context, start, end routine.Date) recurrence.HolidayLookup {
	h, _ := c.Lookup(ctx, start, end)
	return h
}
