package alarm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"routined/internal/routine"
	logx "routined/pkg/logx"
)

// Port is the one-shot wake-up primitive. Register replaces any earlier
// registration for the same routine; Unregister of an unknown id is not an error.
type Port interface {
	Register(ctx context.Context, routineID string, at time.Time) error
	Unregister(ctx context.Context, routineID string) error
}

type OutcomeKind int

const (
	OutcomeScheduled OutcomeKind = iota
	OutcomeNoReminder
	OutcomeNoFutureTime
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeScheduled:
		return "scheduled"
	case OutcomeNoReminder:
		return "no_reminder"
	case OutcomeNoFutureTime:
		return "no_future_time"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome describes what Schedule did for one routine. At is set for
// OutcomeScheduled, Err for OutcomeFailed.
type Outcome struct {
	RoutineID string
	Kind      OutcomeKind
	At        time.Time
	Err       error
}

// Summary aggregates a RescheduleAll pass.
type Summary struct {
	Scheduled    int
	NoReminder   int
	NoFutureTime int
	Failed       int
	Cancelled    int
	Outcomes     []Outcome
}

func (s Summary) Total() int { return s.Scheduled + s.NoReminder + s.NoFutureTime + s.Failed }

// Pending is the last registration made for a routine.
type Pending struct {
	RoutineID string
	At        time.Time
}

type SchedulerOption func(*Scheduler)

func WithNow(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOutcomeObserver is called after every Schedule (metrics hook).
func WithOutcomeObserver(fn func(Outcome)) SchedulerOption {
	return func(s *Scheduler) { s.observe = fn }
}

// Scheduler serialises Schedule and Cancel per routine id.
type Scheduler struct {
	calc *Calculator
	port Port
	log  logx.Logger

	now     func() time.Time
	observe func(Outcome)

	locks keyedMutex

	mu      sync.Mutex
	pending map[string]time.Time
}

func NewScheduler(calc *Calculator, port Port, log logx.Logger, opts ...SchedulerOption) *Scheduler {
	if calc == nil {
		calc = NewCalculator(nil, nil)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		calc:    calc,
		port:    port,
		log:     log,
		now:     time.Now,
		pending: map[string]time.Time{},
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// Schedule cancels the routine's registration and registers its next trigger,
// if any. Failures are returned in the outcome, never panicked.
func (s *Scheduler) Schedule(ctx context.Context, r routine.Routine) (out Outcome) {
	out = Outcome{RoutineID: r.ID}
	defer func() {
		if rec := recover(); rec != nil {
			out = Outcome{RoutineID: r.ID, Kind: OutcomeFailed, Err: fmt.Errorf("panic: %v", rec)}
		}
		s.report(out)
	}()

	unlock := s.locks.Lock(r.ID)
	defer unlock()

	if err := s.port.Unregister(ctx, r.ID); err != nil {
		out.Kind, out.Err = OutcomeFailed, fmt.Errorf("unregister: %w", err)
		return out
	}
	s.forget(r.ID)

	if !r.HasReminder() {
		out.Kind = OutcomeNoReminder
		return out
	}
	at, ok := s.calc.NextTriggerTime(ctx, r, s.now())
	if !ok {
		out.Kind = OutcomeNoFutureTime
		return out
	}
	if err := s.port.Register(ctx, r.ID, at); err != nil {
		out.Kind, out.Err = OutcomeFailed, fmt.Errorf("register: %w", err)
		return out
	}

	s.mu.Lock()
	s.pending[r.ID] = at
	s.mu.Unlock()

	out.Kind, out.At = OutcomeScheduled, at
	return out
}

func (s *Scheduler) report(out Outcome) {
	log := s.log.With(logx.String("routine", out.RoutineID))
	switch out.Kind {
	case OutcomeScheduled:
		log.Info("alarm scheduled", logx.Time("at", out.At))
	case OutcomeFailed:
		log.Error("alarm scheduling failed", logx.Err(out.Err))
	default:
		log.Debug("no alarm", logx.Stringer("reason", out.Kind))
	}
	if s.observe != nil {
		s.observe(out)
	}
}

// Cancel removes any registration for id.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.forget(id)
	if err := s.port.Unregister(ctx, id); err != nil {
		s.log.Warn("alarm cancel failed", logx.String("routine", id), logx.Err(err))
		return err
	}
	return nil
}

func (s *Scheduler) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// RescheduleAll re-derives every routine's alarm and cancels registrations for
// routines that are no longer listed. One routine failing never stops the rest.
func (s *Scheduler) RescheduleAll(ctx context.Context, routines []routine.Routine) Summary {
	var sum Summary
	keep := make(map[string]struct{}, len(routines))
	for _, r := range routines {
		keep[r.ID] = struct{}{}
		if err := ctx.Err(); err != nil {
			sum.Failed++
			sum.Outcomes = append(sum.Outcomes, Outcome{RoutineID: r.ID, Kind: OutcomeFailed, Err: err})
			continue
		}
		out := s.Schedule(ctx, r)
		sum.Outcomes = append(sum.Outcomes, out)
		switch out.Kind {
		case OutcomeScheduled:
			sum.Scheduled++
		case OutcomeNoReminder:
			sum.NoReminder++
		case OutcomeNoFutureTime:
			sum.NoFutureTime++
		default:
			sum.Failed++
		}
	}

	for _, p := range s.Pending() {
		if _, ok := keep[p.RoutineID]; ok {
			continue
		}
		if err := s.Cancel(ctx, p.RoutineID); err == nil {
			sum.Cancelled++
		}
	}

	s.log.Info("alarms rescheduled",
		logx.Int("scheduled", sum.Scheduled),
		logx.Int("no_reminder", sum.NoReminder),
		logx.Int("no_future_time", sum.NoFutureTime),
		logx.Int("failed", sum.Failed),
		logx.Int("cancelled", sum.Cancelled),
	)
	return sum
}

// Pending lists current registrations ordered by trigger time.
func (s *Scheduler) Pending() []Pending {
	s.mu.Lock()
	out := make([]Pending, 0, len(s.pending))
	for id, at := range s.pending {
		out = append(out, Pending{RoutineID: id, At: at})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].RoutineID < out[j].RoutineID
	})
	return out
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*refMutex{}
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
