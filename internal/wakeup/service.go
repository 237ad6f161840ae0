package wakeup

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"routined/internal/eventbus"
	logx "routined/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus
	now func() time.Time

	parser cron.Parser
	c      *cron.Cron
	jobs   []jobDef
	base   context.Context

	// Alarm definitions survive Stop; timers are runtime only.
	tmu     sync.Mutex
	running bool
	alarms  map[string]alarmDef
	timers  map[string]*time.Timer
	seq     uint64
	grace   time.Duration

	fired   atomic.Uint64
	dropped atomic.Uint64
}

type Option func(*Service)

// WithClock overrides time.Now, used when deciding whether an alarm is overdue.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	if cfg.LateGrace <= 0 {
		cfg.LateGrace = DefaultLateGrace
	}
	s := &Service{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		now:    time.Now,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		alarms: map[string]alarmDef{},
		timers: map[string]*time.Timer{},
		base:   context.Background(),
		grace:  cfg.LateGrace,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	s.loc = loadLocation(cfg.Timezone, log)
	return s
}

// Location is the timezone daily jobs run in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Apply updates the configuration. A timezone change restarts the cron runner
// so daily jobs follow the new wall clock.
func (s *Service) Apply(cfg Config) {
	if cfg.LateGrace <= 0 {
		cfg.LateGrace = DefaultLateGrace
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	s.tmu.Lock()
	s.grace = cfg.LateGrace
	s.tmu.Unlock()

	if oldTZ == newTZ {
		return
	}
	s.loc = loadLocation(newTZ, s.log)
	if s.c != nil {
		s.restartLocked()
	}
}

// Start starts the cron runner and arms every known alarm. Alarms that became
// overdue by more than the late grace while stopped are dropped.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if ctx != nil {
		s.base = ctx
	}
	s.c = s.newCronLocked()
	for i := range s.jobs {
		s.addJobLocked(&s.jobs[i])
	}
	s.c.Start()
	armed := s.rebuildTimers()
	s.log.Info("wakeup started",
		logx.String("tz", s.loc.String()),
		logx.Int("jobs", len(s.jobs)),
		logx.Int("alarms", armed),
	)
}

// Stop halts cron and all alarm timers. Alarm definitions are kept.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.tmu.Lock()
	s.running = false
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	kept := len(s.alarms)
	s.tmu.Unlock()

	s.log.Info("wakeup stopped", logx.Int("alarms_kept", kept), logx.Duration("took", time.Since(start)))
}

func (s *Service) newCronLocked() *cron.Cron {
	cl := cronLogger{log: s.log}
	return cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.c = s.newCronLocked()
	for i := range s.jobs {
		s.addJobLocked(&s.jobs[i])
	}
	s.c.Start()
	s.log.Info("wakeup restarted", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Snapshot reports pending alarms (soonest first) and daily jobs.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	out := Snapshot{Running: s.c != nil, Timezone: s.loc.String()}
	for _, d := range s.jobs {
		j := Job{Name: d.name, At: d.at, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			j.Next, j.Prev = e.Next, e.Prev
		}
		out.Jobs = append(out.Jobs, j)
	}
	s.mu.Unlock()

	out.Alarms = s.Alarms()
	out.Fired = s.fired.Load()
	out.Dropped = s.dropped.Load()
	return out
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
