package alarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"routined/internal/routine"
	logx "routined/pkg/logx"
)

type portCall struct {
	op string
	id string
	at time.Time
}

type fakePort struct {
	mu      sync.Mutex
	calls   []portCall
	regs    map[string]time.Time
	failFor map[string]error
}

func newFakePort() *fakePort {
	return &fakePort{regs: map[string]time.Time{}, failFor: map[string]error{}}
}

func (p *fakePort) Register(ctx context.Context, id string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, portCall{op: "register", id: id, at: at})
	if err := p.failFor[id]; err != nil {
		return err
	}
	p.regs[id] = at
	return nil
}

func (p *fakePort) Unregister(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, portCall{op: "unregister", id: id})
	delete(p.regs, id)
	return nil
}

func (p *fakePort) snapshot() ([]portCall, map[string]time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	regs := make(map[string]time.Time, len(p.regs))
	for k, v := range p.regs {
		regs[k] = v
	}
	return append([]portCall(nil), p.calls...), regs
}

func newTestScheduler(port Port, now time.Time) *Scheduler {
	return NewScheduler(NewCalculator(seoul, nil), port, logx.Nop(), WithNow(func() time.Time { return now }))
}

func TestScheduleCancelsThenRegisters(t *testing.T) {
	t.Parallel()
	port := newFakePort()
	s := newTestScheduler(port, at(2024, time.July, 2, 9, 0))
	r := routine.Routine{ID: "w", Repeat: routine.Weekly{Days: routine.NewWeekdaySet(1, 3, 5)}, Reminder: clock(8, 0)}

	out := s.Schedule(context.Background(), r)
	if out.Kind != OutcomeScheduled || !out.At.Equal(at(2024, time.July, 3, 8, 0)) {
		t.Fatalf("outcome = %+v", out)
	}
	calls, regs := port.snapshot()
	if len(calls) != 2 || calls[0].op != "unregister" || calls[1].op != "register" {
		t.Fatalf("calls = %+v", calls)
	}
	if !regs["w"].Equal(out.At) {
		t.Fatalf("registered %v", regs["w"])
	}
	if p := s.Pending(); len(p) != 1 || p[0].RoutineID != "w" {
		t.Fatalf("pending = %+v", p)
	}
}

func TestScheduleWithoutReminderOrFutureClearsRegistration(t *testing.T) {
	t.Parallel()
	port := newFakePort()
	now := at(2025, time.June, 18, 0, 0)
	s := newTestScheduler(port, now)
	ctx := context.Background()

	r := routine.Routine{ID: "o", Repeat: routine.Once{Date: routine.NewDate(2025, time.June, 17)}, Reminder: clock(7, 30)}
	_ = port.Register(ctx, "o", now.Add(-time.Hour))

	if out := s.Schedule(ctx, r); out.Kind != OutcomeNoFutureTime {
		t.Fatalf("outcome = %+v", out)
	}
	r.Reminder = nil
	if out := s.Schedule(ctx, r); out.Kind != OutcomeNoReminder {
		t.Fatalf("outcome = %+v", out)
	}
	if _, regs := port.snapshot(); len(regs) != 0 {
		t.Fatalf("registrations left: %v", regs)
	}
}

func TestRescheduleAllContinuesPastFailures(t *testing.T) {
	t.Parallel()
	port := newFakePort()
	denied := errors.New("permission denied")
	port.failFor["b"] = denied
	s := newTestScheduler(port, at(2024, time.July, 2, 9, 0))

	weekly := routine.Weekly{Days: routine.AllDays}
	routines := []routine.Routine{
		{ID: "a", Repeat: weekly, Reminder: clock(10, 0)},
		{ID: "b", Repeat: weekly, Reminder: clock(10, 0)},
		{ID: "c", Repeat: weekly, Reminder: clock(10, 0)},
		{ID: "d", Repeat: weekly},
	}
	var observed []Outcome
	var mu sync.Mutex
	s.observe = func(o Outcome) {
		mu.Lock()
		observed = append(observed, o)
		mu.Unlock()
	}

	sum := s.RescheduleAll(context.Background(), routines)
	if sum.Scheduled != 2 || sum.Failed != 1 || sum.NoReminder != 1 || sum.Total() != 4 {
		t.Fatalf("summary = %+v", sum)
	}
	if !errors.Is(sum.Outcomes[1].Err, denied) {
		t.Fatalf("b outcome = %+v", sum.Outcomes[1])
	}
	_, regs := port.snapshot()
	if _, ok := regs["c"]; !ok {
		t.Fatal("routine after the failing one was not scheduled")
	}
	if len(observed) != 4 {
		t.Fatalf("observed %d outcomes", len(observed))
	}
}

func TestRescheduleAllCancelsRemovedRoutines(t *testing.T) {
	t.Parallel()
	port := newFakePort()
	s := newTestScheduler(port, at(2024, time.July, 2, 9, 0))
	ctx := context.Background()
	weekly := routine.Weekly{Days: routine.AllDays}

	s.RescheduleAll(ctx, []routine.Routine{
		{ID: "keep", Repeat: weekly, Reminder: clock(10, 0)},
		{ID: "gone", Repeat: weekly, Reminder: clock(10, 0)},
	})
	sum := s.RescheduleAll(ctx, []routine.Routine{{ID: "keep", Repeat: weekly, Reminder: clock(10, 0)}})
	if sum.Cancelled != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	_, regs := port.snapshot()
	if _, ok := regs["gone"]; ok {
		t.Fatal("removed routine still registered")
	}
	if len(s.Pending()) != 1 {
		t.Fatalf("pending = %+v", s.Pending())
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	port := newFakePort()
	s := newTestScheduler(port, at(2024, time.July, 2, 9, 0))
	if err := s.Cancel(context.Background(), "nothing"); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(context.Background(), "nothing"); err != nil {
		t.Fatal(err)
	}
}

// orderPort records whether two operations on the same id ever overlap.
type orderPort struct {
	mu      sync.Mutex
	active  map[string]int
	overlap bool
}

func (p *orderPort) enter(id string) {
	p.mu.Lock()
	p.active[id]++
	if p.active[id] > 1 {
		p.overlap = true
	}
	p.mu.Unlock()
	time.Sleep(time.Millisecond)
	p.mu.Lock()
	p.active[id]--
	p.mu.Unlock()
}

func (p *orderPort) Register(_ context.Context, id string, _ time.Time) error {
	p.enter(id)
	return nil
}

func (p *orderPort) Unregister(_ context.Context, id string) error {
	p.enter(id)
	return nil
}

func TestScheduleSerialisedPerRoutine(t *testing.T) {
	t.Parallel()
	port := &orderPort{active: map[string]int{}}
	s := newTestScheduler(port, at(2024, time.July, 2, 9, 0))
	r := routine.Routine{ID: "same", Repeat: routine.Weekly{Days: routine.AllDays}, Reminder: clock(10, 0)}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); s.Schedule(context.Background(), r) }()
		go func() { defer wg.Done(); _ = s.Cancel(context.Background(), r.ID) }()
	}
	wg.Wait()
	if port.overlap {
		t.Fatal("operations on the same routine overlapped")
	}
}

type panicPort struct{}

func (panicPort) Register(context.Context, string, time.Time) error { panic("boom") }
func (panicPort) Unregister(context.Context, string) error          { return nil }

func TestSchedulePanicBecomesFailure(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(panicPort{}, at(2024, time.July, 2, 9, 0))
	r := routine.Routine{ID: "p", Repeat: routine.Weekly{Days: routine.AllDays}, Reminder: clock(10, 0)}
	out := s.Schedule(context.Background(), r)
	if out.Kind != OutcomeFailed || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
	// The per-routine lock must have been released.
	if err := s.Cancel(context.Background(), "p"); err != nil {
		t.Fatal(err)
	}
}
