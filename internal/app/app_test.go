package app

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "time/tzdata"

	"routined/internal/config"
	"routined/internal/eventbus"
	"routined/internal/report"
	"routined/internal/routine"
	"routined/internal/wakeup"
	logx "routined/pkg/logx"
)

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	s, err := config.Resolve(&config.Config{
		Timezone: "Asia/Seoul",
		Holidays: config.HolidaysConfig{
			Static: []config.StaticHoliday{{Date: "2025-05-05", Name: "Children's Day"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Clock.ZoneinfoPath = ""
	return s
}

func fixedNow(s config.Settings, y int, m time.Month, d, hh, mm int) func() time.Time {
	at := time.Date(y, m, d, hh, mm, 0, 0, s.Location)
	return func() time.Time { return at }
}

func TestBuildPicksStaticSource(t *testing.T) {
	t.Parallel()
	s := testSettings(t)
	if s.Holidays.Source != "static" || s.Storage.Driver != "memory" {
		t.Fatalf("settings = %+v / %+v", s.Holidays, s.Storage)
	}
	c, err := Build(s, logx.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	h := c.Calendar.HolidayLookup(context.Background(), routine.NewDate(2025, time.May, 1), routine.NewDate(2025, time.May, 31))
	if !h.IsHoliday(routine.NewDate(2025, time.May, 5)) || h.IsHoliday(routine.NewDate(2025, time.May, 6)) {
		t.Fatal("static holiday not served through the calendar")
	}
}

func TestComponentsDueCheckAndReport(t *testing.T) {
	t.Parallel()
	s := testSettings(t)
	c, err := Build(s, logx.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.now = fixedNow(s, 2025, time.May, 7, 12, 0) // Wednesday
	ctx := context.Background()

	work, err := c.Store.InsertRoutine(ctx, routine.Routine{ID: "work", Title: "commute", Repeat: routine.NewWeekdayHoliday(routine.SplitWeekday, nil)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Store.InsertRoutine(ctx, routine.Routine{ID: "rest", Title: "nap", Repeat: routine.NewWeekdayHoliday(routine.SplitHoliday, nil)}); err != nil {
		t.Fatal(err)
	}

	children := routine.NewDate(2025, time.May, 5)
	due, err := c.DueOn(ctx, children)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != "rest" {
		t.Fatalf("due on holiday = %v", due)
	}

	if err := c.Check(ctx, work.ID, children, true); !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("check on holiday: err = %v", err)
	}
	if err := c.Check(ctx, "missing", children, true); err == nil {
		t.Fatal("check of unknown routine should fail")
	}
	if err := c.Check(ctx, work.ID, routine.NewDate(2025, time.May, 6), true); err != nil {
		t.Fatal(err)
	}

	// Week of Mon 05-05 .. Sun 05-11, counted through Wednesday 05-07.
	rep, err := c.Report(ctx, report.Weekly, c.Today())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Expected != 3 || rep.Completed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	// work and rest each missed one day; ties go to the first routine by id
	if rep.MostKept.RoutineID != "work" || rep.MostMissed.RoutineID != "rest" {
		t.Fatalf("highlights = %+v / %+v", rep.MostKept, rep.MostMissed)
	}
}

func TestNextTriggers(t *testing.T) {
	t.Parallel()
	s := testSettings(t)
	c, err := Build(s, logx.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.now = fixedNow(s, 2025, time.May, 2, 9, 0) // Friday before the holiday
	ctx := context.Background()

	rem := routine.Clock{Hour: 8}
	if _, err := c.Store.InsertRoutine(ctx, routine.Routine{ID: "work", Repeat: routine.NewWeekdayHoliday(routine.SplitWeekday, nil), Reminder: &rem}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Store.InsertRoutine(ctx, routine.Routine{ID: "quiet", Repeat: routine.Weekly{Days: routine.AllDays}}); err != nil {
		t.Fatal(err)
	}

	next, err := c.NextTriggers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]NextTrigger{}
	for _, n := range next {
		byID[n.Routine.ID] = n
	}
	want := time.Date(2025, time.May, 6, 8, 0, 0, 0, s.Location) // Monday is a holiday
	if w := byID["work"]; !w.OK || !w.At.Equal(want) {
		t.Fatalf("work = %+v, want %v", w, want)
	}
	if byID["quiet"].OK {
		t.Fatal("routine without reminder has a trigger")
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := build(testSettings(t), eventbus.New(), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	a.notify = func(string) {}
	return a
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartArmsAlarmsOnBoot(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	ctx := context.Background()
	rem := routine.Clock{Hour: 6, Minute: 30}
	if _, err := a.comp.Store.InsertRoutine(ctx, routine.Routine{ID: "daily", Repeat: routine.Weekly{Days: routine.AllDays}, Reminder: &rem}); err != nil {
		t.Fatal(err)
	}

	var states []string
	a.notify = func(s string) { states = append(states, s) }
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "boot reschedule", func() bool { return len(a.sched.Pending()) == 1 })

	alarms := a.wake.Alarms()
	if len(alarms) != 1 || alarms[0].RoutineID != "daily" || !alarms[0].Armed {
		t.Fatalf("alarms = %+v", alarms)
	}
	jobs := a.wake.Snapshot().Jobs
	if len(jobs) != 1 || jobs[0].Name != resyncJob || jobs[0].At != config.DefaultResyncAt {
		t.Fatalf("jobs = %+v", jobs)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 {
		t.Fatalf("sd_notify states = %v", states)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestFiredReminderIsRearmed(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	ctx := context.Background()
	rem := routine.Clock{Hour: 7}
	if _, err := a.comp.Store.InsertRoutine(ctx, routine.Routine{ID: "r", Repeat: routine.Weekly{Days: routine.AllDays}, Reminder: &rem}); err != nil {
		t.Fatal(err)
	}

	a.handle(ctx, eventbus.Event{Type: wakeup.EventReminderFired, Data: wakeup.FiredEvent{RoutineID: "r", At: time.Now(), FiredAt: time.Now()}})
	if p := a.sched.Pending(); len(p) != 1 || p[0].RoutineID != "r" || !p[0].At.After(time.Now()) {
		t.Fatalf("pending = %+v", p)
	}

	if err := a.comp.Store.DeleteRoutine(ctx, "r"); err != nil {
		t.Fatal(err)
	}
	a.handle(ctx, eventbus.Event{Type: wakeup.EventReminderFired, Data: wakeup.FiredEvent{RoutineID: "r"}})
	if p := a.sched.Pending(); len(p) != 0 {
		t.Fatalf("deleted routine still pending: %+v", p)
	}
	if al := a.wake.Alarms(); len(al) != 0 {
		t.Fatalf("deleted routine still registered: %+v", al)
	}
}

func TestStopReasonFromSignal(t *testing.T) {
	t.Parallel()
	if StopReasonFromSignal(nil) != StopAppStop {
		t.Fatal("nil signal")
	}
}
