package holiday

import (
	"context"
	"time"

	"routined/internal/routine"
)

// StaticSource serves a fixed list of holidays, e.g. from config.
type StaticSource struct {
	days map[routine.Date]string
}

func NewStaticSource(recs ...routine.HolidayRecord) *StaticSource {
	s := &StaticSource{days: make(map[routine.Date]string, len(recs))}
	for _, r := range recs {
		if r.IsHoliday {
			s.days[r.Date] = r.Name
		}
	}
	return s
}

func (s *StaticSource) Fetch(ctx context.Context, year int, month time.Month) ([]routine.HolidayRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	first, last := routine.MonthBounds(year, month)
	var out []routine.HolidayRecord
	for d := first; !d.After(last); d = d.AddDays(1) {
		if name, ok := s.days[d]; ok {
			out = append(out, routine.HolidayRecord{Date: d, IsHoliday: true, Name: name})
		}
	}
	return out, nil
}
