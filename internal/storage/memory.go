package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"routined/internal/routine"
)

type monthKey struct {
	Year  int
	Month time.Month
}

type checkKey struct {
	RoutineID string
	Date      routine.Date
}

// MemoryStore keeps everything in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	closed bool

	order    []string
	routines map[string]routine.Routine
	checks   map[checkKey]bool
	holidays map[routine.Date]routine.HolidayRecord
	entries  map[monthKey]time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		routines: map[string]routine.Routine{},
		checks:   map[checkKey]bool{},
		holidays: map[routine.Date]routine.HolidayRecord{},
		entries:  map[monthKey]time.Time{},
	}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AllRoutines(ctx context.Context) ([]routine.Routine, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]routine.Routine, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.routines[id])
	}
	routine.SortByID(out)
	return out, nil
}

func (s *MemoryStore) GetRoutine(ctx context.Context, id string) (routine.Routine, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return routine.Routine{}, false, ErrClosed
	}
	r, ok := s.routines[id]
	return r, ok, nil
}

func (s *MemoryStore) InsertRoutine(ctx context.Context, r routine.Routine) (routine.Routine, error) {
	_ = ctx
	r, err := prepareInsert(r)
	if err != nil {
		return routine.Routine{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return routine.Routine{}, ErrClosed
	}
	s.putLocked(r)
	return r, nil
}

func (s *MemoryStore) putLocked(r routine.Routine) {
	if _, ok := s.routines[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.routines[r.ID] = r
}

func (s *MemoryStore) DeleteRoutine(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.routines[id]; !ok {
		return ErrNotFound
	}
	s.deleteLocked(id)
	return nil
}

func (s *MemoryStore) deleteLocked(id string) {
	delete(s.routines, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for k := range s.checks {
		if k.RoutineID == id {
			delete(s.checks, k)
		}
	}
}

func (s *MemoryStore) SetChecked(ctx context.Context, routineID string, d routine.Date, done bool) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.routines[routineID]; !ok {
		return ErrNotFound
	}
	s.checks[checkKey{RoutineID: routineID, Date: d}] = done
	return nil
}

func (s *MemoryStore) ChecksForDate(ctx context.Context, d routine.Date) ([]routine.CompletionMark, error) {
	return s.ChecksForPeriod(ctx, d, d)
}

func (s *MemoryStore) ChecksForPeriod(ctx context.Context, start, end routine.Date) ([]routine.CompletionMark, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []routine.CompletionMark
	for k, done := range s.checks {
		if within(k.Date, start, end) {
			out = append(out, routine.CompletionMark{RoutineID: k.RoutineID, Date: k.Date, Done: done})
		}
	}
	sortMarks(out)
	return out, nil
}

func (s *MemoryStore) MonthHolidays(ctx context.Context, year int, month time.Month) ([]routine.HolidayRecord, error) {
	_ = ctx
	first, last := routine.MonthBounds(year, month)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []routine.HolidayRecord
	for d, rec := range s.holidays {
		if within(d, first, last) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) CacheEntry(ctx context.Context, year int, month time.Month) (routine.HolidayCacheEntry, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return routine.HolidayCacheEntry{}, false, ErrClosed
	}
	at, ok := s.entries[monthKey{Year: year, Month: month}]
	if !ok {
		return routine.HolidayCacheEntry{}, false, nil
	}
	return routine.HolidayCacheEntry{Year: year, Month: month, LastFetchedAt: at}, true, nil
}

func (s *MemoryStore) ReplaceMonth(ctx context.Context, year int, month time.Month, recs []routine.HolidayRecord, fetchedAt time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.replaceMonthLocked(year, month, recs, fetchedAt)
	return nil
}

func (s *MemoryStore) replaceMonthLocked(year int, month time.Month, recs []routine.HolidayRecord, fetchedAt time.Time) {
	first, last := routine.MonthBounds(year, month)
	for d := range s.holidays {
		if within(d, first, last) {
			delete(s.holidays, d)
		}
	}
	for _, rec := range recs {
		// Records outside the month would survive the next replace of that month.
		if within(rec.Date, first, last) {
			s.holidays[rec.Date] = rec
		}
	}
	s.entries[monthKey{Year: year, Month: month}] = fetchedAt
}

func sortMarks(ms []routine.CompletionMark) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Date != ms[j].Date {
			return ms[i].Date.Before(ms[j].Date)
		}
		return ms[i].RoutineID < ms[j].RoutineID
	})
}
