package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"routined/internal/alarm"
	"routined/internal/config"
	"routined/internal/holiday"
	"routined/internal/holiday/datagokr"
	"routined/internal/metrics"
	"routined/internal/recurrence"
	"routined/internal/report"
	"routined/internal/routine"
	"routined/internal/storage"
	logx "routined/pkg/logx"
)

// Components are the pieces shared by the daemon and the one-shot CLI
// commands: storage, the holiday cache and the trigger calculator.
type Components struct {
	Settings config.Settings
	Store    storage.Store
	Holidays *holiday.Cache
	Calendar *holiday.Calendar
	Calc     *alarm.Calculator

	log logx.Logger
	now func() time.Time
}

// Build opens storage and wires the holiday source. m may be nil.
func Build(s config.Settings, log logx.Logger, m *metrics.Metrics) (*Components, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	store, err := storage.Open(storage.Config{
		Driver:      s.Storage.Driver,
		Path:        s.Storage.Path,
		BusyTimeout: s.Storage.BusyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	src, err := holidaySource(s.Holidays, log.With(logx.String("comp", "holidays")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	opts := []holiday.Option{
		holiday.WithTTL(s.Holidays.TTL),
		holiday.WithFetchTimeout(s.Holidays.FetchTimeout),
	}
	if m != nil {
		opts = append(opts, holiday.WithObserver(m.ObserveHoliday))
	}
	cache := holiday.NewCache(store, src, log.With(logx.String("comp", "holidays")), opts...)
	cal := holiday.NewCalendar(cache)

	return &Components{
		Settings: s,
		Store:    store,
		Holidays: cache,
		Calendar: cal,
		Calc:     alarm.NewCalculator(s.Location, cal),
		log:      log,
		now:      time.Now,
	}, nil
}

func holidaySource(h config.HolidaySettings, log logx.Logger) (holiday.Source, error) {
	switch h.Source {
	case "datagokr":
		c, err := datagokr.New(datagokr.Config{
			BaseURL:    h.BaseURL,
			Operation:  h.Operation,
			ServiceKey: h.ServiceKey,
			RatePerSec: h.RatePerSec,
			Timeout:    h.FetchTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "static":
		return holiday.NewStaticSource(h.Static...), nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown holiday source %q", h.Source)
	}
}

func (c *Components) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// Today is the current date in the configured timezone.
func (c *Components) Today() routine.Date {
	return routine.Today(c.now(), c.Settings.Location)
}

// DueOn lists the routines applicable on d, ordered by id.
func (c *Components) DueOn(ctx context.Context, d routine.Date) ([]routine.Routine, error) {
	rs, err := c.Store.AllRoutines(ctx)
	if err != nil {
		return nil, err
	}
	h := c.Calendar.HolidayLookup(ctx, d, d)
	return recurrence.DueOn(rs, d, h), nil
}

// NextTrigger pairs a routine with its next alarm, if any.
type NextTrigger struct {
	Routine routine.Routine
	At      time.Time
	OK      bool
}

// NextTriggers computes every routine's next alarm from now.
func (c *Components) NextTriggers(ctx context.Context) ([]NextTrigger, error) {
	rs, err := c.Store.AllRoutines(ctx)
	if err != nil {
		return nil, err
	}
	now := c.now()
	out := make([]NextTrigger, 0, len(rs))
	for _, r := range rs {
		at, ok := c.Calc.NextTriggerTime(ctx, r, now)
		out = append(out, NextTrigger{Routine: r, At: at, OK: ok})
	}
	return out, nil
}

// Report builds the weekly or monthly report for the window containing selected.
func (c *Components) Report(ctx context.Context, p report.Period, selected routine.Date) (report.Report, error) {
	start, end := report.Window(p, selected)
	rs, err := c.Store.AllRoutines(ctx)
	if err != nil {
		return report.Report{}, err
	}
	marks, err := c.Store.ChecksForPeriod(ctx, start, end)
	if err != nil {
		return report.Report{}, err
	}
	h := c.Calendar.HolidayLookup(ctx, start, end)
	return report.Build(rs, marks, p, selected, c.Today(), h), nil
}

// Check records (or clears) completion of a routine on d. Marks for routines
// that are not applicable on d are rejected.
func (c *Components) Check(ctx context.Context, id string, d routine.Date, done bool) error {
	r, ok, err := c.Store.GetRoutine(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if done && !recurrence.IsApplicable(r, d, c.Calendar.HolidayLookup(ctx, d, d)) {
		return fmt.Errorf("%w: %s on %s", ErrNotApplicable, id, d)
	}
	return c.Store.SetChecked(ctx, id, d, done)
}

var ErrNotApplicable = errors.New("routine is not due on that date")

// PrefetchMonths warms the current month and the next n-1.
func (c *Components) PrefetchMonths(ctx context.Context, n int) []holiday.Result {
	if n <= 0 {
		n = 1
	}
	months := make([]holiday.Month, 0, n)
	m := holiday.MonthOf(c.Today())
	for i := 0; i < n; i++ {
		months = append(months, m)
		m = m.Next()
	}
	return c.Holidays.Prefetch(ctx, months...)
}
