package storage

import (
	"context"
	"errors"
	"time"

	"routined/internal/routine"
)

var (
	ErrClosed   = errors.New("storage closed")
	ErrNotFound = errors.New("routine not found")
)

// Config configures storage.
//
// Driver values:
//   - "memory": process-local maps, nothing survives a restart
//   - "file": memory maps persisted as a JSON snapshot plus an append-only journal
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// An empty Driver means "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RoutineStore persists routine definitions and completion marks.
type RoutineStore interface {
	// AllRoutines returns every valid routine ordered by ID.
	AllRoutines(ctx context.Context) ([]routine.Routine, error)
	GetRoutine(ctx context.Context, id string) (routine.Routine, bool, error)
	// InsertRoutine validates r, assigns a UUID when r.ID is empty and
	// replaces any routine with the same ID.
	InsertRoutine(ctx context.Context, r routine.Routine) (routine.Routine, error)
	DeleteRoutine(ctx context.Context, id string) error

	SetChecked(ctx context.Context, routineID string, d routine.Date, done bool) error
	ChecksForDate(ctx context.Context, d routine.Date) ([]routine.CompletionMark, error)
	ChecksForPeriod(ctx context.Context, start, end routine.Date) ([]routine.CompletionMark, error)
}

// HolidayStore is the local side of the holiday cache.
type HolidayStore interface {
	MonthHolidays(ctx context.Context, year int, month time.Month) ([]routine.HolidayRecord, error)
	CacheEntry(ctx context.Context, year int, month time.Month) (routine.HolidayCacheEntry, bool, error)
	// ReplaceMonth deletes the month's records, inserts recs and upserts the
	// cache entry, all or nothing.
	ReplaceMonth(ctx context.Context, year int, month time.Month, recs []routine.HolidayRecord, fetchedAt time.Time) error
}

// Store is the persistence API used by the daemon and CLI.
type Store interface {
	RoutineStore
	HolidayStore
	Close() error
}
