package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"routined/internal/alarm"
	"routined/internal/clockwatch"
	"routined/internal/config"
	"routined/internal/eventbus"
	"routined/internal/metrics"
	rtsup "routined/internal/runtime/supervisor"
	"routined/internal/wakeup"
	logx "routined/pkg/logx"
)

const resyncJob = "alarms.resync"

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	comp    *Components
	wake    *wakeup.Service
	sched   *alarm.Scheduler
	clock   *clockwatch.Watcher
	metrics *metrics.Metrics
	http    *metrics.Server

	notify func(state string) // sd_notify; replaced in tests
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	s, err := config.Resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(s.Logging)
	a, err := build(s, eventbus.New(), log)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	a.cfgPath = cfgPath
	a.cfgm = cfgm
	a.logs = logSvc
	return a, nil
}

// build wires every component from resolved settings without starting anything.
func build(s config.Settings, bus eventbus.Bus, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := metrics.New()
	comp, err := Build(s, log, m)
	if err != nil {
		return nil, err
	}

	wake := wakeup.New(wakeup.Config{
		Timezone:  s.Location.String(),
		LateGrace: s.Alarms.LateGrace,
	}, bus, log.With(logx.String("comp", "wakeup")))
	sched := alarm.NewScheduler(comp.Calc, wake, log.With(logx.String("comp", "alarms")),
		alarm.WithOutcomeObserver(m.ObserveOutcome))

	cw := clockwatch.New(clockwatch.Config{
		CheckInterval: s.Clock.CheckInterval,
		JumpThreshold: s.Clock.JumpThreshold,
		ZoneinfoPath:  s.Clock.ZoneinfoPath,
	}, bus, log.With(logx.String("comp", "clockwatch")))

	a := &App{
		log:     log.With(logx.String("comp", "app")),
		bus:     bus,
		comp:    comp,
		wake:    wake,
		sched:   sched,
		clock:   cw,
		metrics: m,
		notify:  sdNotify,
	}
	a.http = metrics.NewServer(metrics.ServerConfig{Enabled: s.Metrics.Enabled, Addr: s.Metrics.Addr}, m, a.Err, log)

	m.GaugeFunc("pending_alarms", "Routines with a registered alarm.", func() float64 {
		return float64(len(sched.Pending()))
	})
	if c, ok := bus.(eventbus.Counter); ok {
		m.CounterFunc("bus_dropped_events_total", "Events dropped because a subscriber was full.", func() float64 {
			return float64(c.Dropped())
		})
	}
	return a, nil
}

func (a *App) Components() *Components { return a.comp }

func (a *App) Scheduler() *alarm.Scheduler { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		// transactional reload: a config that does not resolve is never committed
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
			_, err := config.Resolve(cfg)
			return err
		})
	}

	a.wake.Start(c)
	resync := a.comp.Settings.Alarms.ResyncAt.String()
	if err := a.wake.AddDaily(resyncJob, resync, 2*time.Minute, a.resync); err != nil {
		return err
	}

	// Subscribe before Boot so the boot signal cannot be missed.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("events", func(c context.Context) {
		defer unsub()
		a.eventLoop(c, events)
	})

	a.sup.GoRestart("clock.drift", a.clock.RunDrift, rtsup.WithRestartBackoff(time.Second, 30*time.Second))
	a.sup.GoRestart("clock.zone", a.clock.RunZone, rtsup.WithRestartBackoff(time.Second, time.Minute))

	a.http.Start(c)

	if a.cfgm != nil {
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
		})
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	a.clock.Boot()
	a.notify(daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("timezone", a.comp.Settings.Location.String()),
		logx.String("storage", a.comp.Settings.Storage.Driver),
		logx.String("holidays", a.comp.Settings.Holidays.Source),
		logx.String("resync_at", resync),
	)
	return nil
}

// resync warms the holiday months the next alarms may need, then re-derives
// every alarm so refreshed holiday data is picked up.
func (a *App) resync(ctx context.Context) error {
	a.comp.PrefetchMonths(ctx, a.comp.Settings.Holidays.Prefetch)
	_, err := a.rescheduleAll(ctx, "daily")
	return err
}

func (a *App) rescheduleAll(ctx context.Context, reason string) (alarm.Summary, error) {
	rs, err := a.comp.Store.AllRoutines(ctx)
	if err != nil {
		a.log.Error("reschedule: load routines failed", logx.String("reason", reason), logx.Err(err))
		return alarm.Summary{}, err
	}
	sum := a.sched.RescheduleAll(ctx, rs)
	a.metrics.Rescheduled(reason)
	a.log.Debug("reschedule done", logx.String("reason", reason), logx.Int("routines", sum.Total()))
	return sum, nil
}

func (a *App) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.handle(ctx, e)
		}
	}
}

func (a *App) handle(ctx context.Context, e eventbus.Event) {
	switch e.Type {
	case wakeup.EventReminderFired:
		ev, ok := e.Data.(wakeup.FiredEvent)
		if !ok {
			return
		}
		a.metrics.ObserveFired(ev)
		a.log.Info("reminder", logx.String("routine", ev.RoutineID), logx.Time("at", ev.At), logx.Duration("late", ev.Late()))
		r, found, err := a.comp.Store.GetRoutine(ctx, ev.RoutineID)
		if err != nil {
			a.log.Error("re-arm: load routine failed", logx.String("routine", ev.RoutineID), logx.Err(err))
			return
		}
		if !found {
			// deleted while armed
			_ = a.sched.Cancel(ctx, ev.RoutineID)
			return
		}
		a.sched.Schedule(ctx, r)

	case clockwatch.EventBoot:
		a.prefetchAndReschedule(ctx, "boot")

	case clockwatch.EventChanged:
		reason := "clock"
		if ch, ok := e.Data.(clockwatch.Changed); ok {
			reason = ch.Reason
		}
		if reason == clockwatch.ReasonTimezone && a.comp.Settings.Location == time.Local {
			// time.Local is fixed at process start
			a.log.Warn("host timezone changed; restart to pick up the new local zone")
		}
		_, _ = a.rescheduleAll(ctx, reason)

	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

func (a *App) prefetchAndReschedule(ctx context.Context, reason string) {
	pctx, cancel := context.WithTimeout(ctx, a.comp.Settings.Holidays.FetchTimeout*time.Duration(a.comp.Settings.Holidays.Prefetch+1))
	a.comp.PrefetchMonths(pctx, a.comp.Settings.Holidays.Prefetch)
	cancel()
	_, _ = a.rescheduleAll(ctx, reason)
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	s, err := config.Resolve(newCfg)
	if err != nil {
		// validator already rejected these; keep the running settings
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}

	if a.logs != nil {
		a.logs.Apply(s.Logging)
	}
	a.http.Reconfigure(ctx, metrics.ServerConfig{Enabled: s.Metrics.Enabled, Addr: s.Metrics.Addr})

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify(daemon.SdNotifyStopping)

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	a.step(ctx, "wakeup", 2*time.Second, func(c context.Context) error { a.wake.Stop(c); return nil })
	a.step(ctx, "metrics", time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.comp.Close() })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so a single component
// cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	// respect the caller's deadline; never extend it
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
		}()
	}
}

func sdNotify(state string) {
	// false with no error means we are not running under systemd
	_, _ = daemon.SdNotify(false, state)
}
