// Package holiday keeps a month-granular, TTL-bounded local copy of public
// holidays and turns it into lookups for the recurrence engine.
package holiday

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"routined/internal/routine"
	logx "routined/pkg/logx"
)

const (
	DefaultTTL          = 15 * 24 * time.Hour
	DefaultFetchTimeout = 10 * time.Second
)

// Source fetches one month of holiday records from upstream.
type Source interface {
	Fetch(ctx context.Context, year int, month time.Month) ([]routine.HolidayRecord, error)
}

type SourceFunc func(ctx context.Context, year int, month time.Month) ([]routine.HolidayRecord, error)

func (f SourceFunc) Fetch(ctx context.Context, year int, month time.Month) ([]routine.HolidayRecord, error) {
	return f(ctx, year, month)
}

// Store is the local side of the cache (storage.Store satisfies it).
type Store interface {
	MonthHolidays(ctx context.Context, year int, month time.Month) ([]routine.HolidayRecord, error)
	CacheEntry(ctx context.Context, year int, month time.Month) (routine.HolidayCacheEntry, bool, error)
	ReplaceMonth(ctx context.Context, year int, month time.Month, recs []routine.HolidayRecord, fetchedAt time.Time) error
}

type Status int

const (
	StatusCached      Status = iota // local records within TTL
	StatusFresh                     // fetched from the source just now
	StatusStale                     // source failed, previous local records returned
	StatusUnavailable               // source failed and nothing local
)

func (s Status) String() string {
	switch s {
	case StatusCached:
		return "cached"
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one month lookup. Err is set for Stale and
// Unavailable and carries the source failure.
type Result struct {
	Year    int
	Month   time.Month
	Status  Status
	Records []routine.HolidayRecord
	Err     error
}

// Degraded reports whether the records may be incomplete or outdated.
func (r Result) Degraded() bool { return r.Status == StatusStale || r.Status == StatusUnavailable }

type Option func(*Cache)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithFetchTimeout bounds each source call. A timeout counts as a source failure.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithObserver is called once per GetMonthHolidays result (metrics hook).
func WithObserver(fn func(Result)) Option {
	return func(c *Cache) { c.observe = fn }
}

type Cache struct {
	store Store
	src   Source
	log   logx.Logger

	now          func() time.Time
	ttl          time.Duration
	fetchTimeout time.Duration
	observe      func(Result)

	group singleflight.Group
}

func NewCache(store Store, src Source, log logx.Logger, opts ...Option) *Cache {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Cache{
		store:        store,
		src:          src,
		log:          log,
		now:          time.Now,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c
}

var ErrInvalidMonth = errors.New("invalid month")

// GetMonthHolidays returns the month's holiday records, refreshing them from
// the source when the local copy is missing or older than the TTL.
//
// The returned error is only set for invalid arguments. Source failures are
// reported through Result.Status and Result.Err.
func (c *Cache) GetMonthHolidays(ctx context.Context, year int, month time.Month) (Result, error) {
	if month < time.January || month > time.December || year < 1 {
		return Result{}, fmt.Errorf("%w: %d-%02d", ErrInvalidMonth, year, int(month))
	}
	res := c.get(ctx, year, month)
	if c.observe != nil {
		c.observe(res)
	}
	return res, nil
}

func (c *Cache) get(ctx context.Context, year int, month time.Month) Result {
	log := c.log.With(logx.Int("year", year), logx.Int("month", int(month)))

	local, readErr := c.store.MonthHolidays(ctx, year, month)
	if readErr != nil {
		log.Warn("holiday store read failed", logx.Err(readErr))
		local = nil
	}
	entry, ok, err := c.store.CacheEntry(ctx, year, month)
	if err != nil {
		log.Warn("holiday cache entry read failed", logx.Err(err))
		ok = false
	}
	// An entry is only written after a successful fetch, so a fresh entry with
	// no records is a month without holidays and counts as a hit. Requiring
	// records as well would refetch every holiday-free month on each call.
	// A failed records read is never a hit: it would read as "no holidays".
	if readErr == nil && ok && c.now().Sub(entry.LastFetchedAt) < c.ttl {
		return Result{Year: year, Month: month, Status: StatusCached, Records: local}
	}

	recs, shared, err := c.fetch(ctx, year, month)
	if err == nil {
		log.Debug("holiday month refreshed", logx.Int("records", len(recs)), logx.Bool("shared", shared))
		return Result{Year: year, Month: month, Status: StatusFresh, Records: recs}
	}

	if len(local) > 0 {
		log.Warn("holiday source failed, serving stale month", logx.Err(err))
		return Result{Year: year, Month: month, Status: StatusStale, Records: local, Err: err}
	}
	log.Warn("holiday source failed, no local data", logx.Err(err))
	return Result{Year: year, Month: month, Status: StatusUnavailable, Err: err}
}

// fetch joins the in-flight refresh for the month or starts one. The refresh
// is detached from the caller that started it, so a cancelled caller does not
// fail the others; each caller stops waiting when its own ctx ends.
func (c *Cache) fetch(ctx context.Context, year int, month time.Month) ([]routine.HolidayRecord, bool, error) {
	key := fmt.Sprintf("%04d-%02d", year, int(month))
	ch := c.group.DoChan(key, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), year, month)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		recs, _ := res.Val.([]routine.HolidayRecord)
		return recs, res.Shared, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *Cache) refresh(ctx context.Context, year int, month time.Month) ([]routine.HolidayRecord, error) {
	if c.src == nil {
		return nil, errors.New("no holiday source configured")
	}
	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	recs, err := c.src.Fetch(fctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("fetch %04d-%02d: %w", year, int(month), err)
	}
	if err := c.store.ReplaceMonth(ctx, year, month, recs, c.now()); err != nil {
		// The fetched data is still good for this call; the next one retries.
		c.log.Warn("holiday store write failed", logx.Int("year", year), logx.Int("month", int(month)), logx.Err(err))
	}
	return recs, nil
}

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

func MonthOf(d routine.Date) Month { return Month{Year: d.Year, Month: d.Month} }

func (m Month) Next() Month {
	first := routine.NewDate(m.Year, m.Month+1, 1)
	return Month{Year: first.Year, Month: first.Month}
}

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// MonthsBetween lists every month touched by [start, end].
func MonthsBetween(start, end routine.Date) []Month {
	if end.Before(start) {
		return nil
	}
	var out []Month
	last := MonthOf(end)
	for m := MonthOf(start); ; m = m.Next() {
		out = append(out, m)
		if m == last {
			break
		}
	}
	return out
}

// Prefetch warms the given months. Failures are logged and returned in the results.
func (c *Cache) Prefetch(ctx context.Context, months ...Month) []Result {
	out := make([]Result, 0, len(months))
	for _, m := range months {
		res, err := c.GetMonthHolidays(ctx, m.Year, m.Month)
		if err != nil {
			c.log.Warn("prefetch skipped", logx.String("month", m.String()), logx.Err(err))
			continue
		}
		out = append(out, res)
	}
	return out
}
