// Package clockwatch turns boot, wall-clock jumps and timezone changes into
// bus events so pending alarms can be recomputed.
package clockwatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"routined/internal/eventbus"
	logx "routined/pkg/logx"
)

const (
	EventBoot    = "clock.boot"
	EventChanged = "clock.changed"
)

const (
	ReasonWallClockJump = "wall_clock_jump"
	ReasonTimezone      = "timezone"
)

const (
	DefaultCheckInterval = 30 * time.Second
	DefaultJumpThreshold = 2 * time.Minute
	DefaultZoneinfoPath  = "/etc/localtime"

	zoneDebounce = 500 * time.Millisecond
)

var errWatcherClosed = errors.New("clockwatch: watcher closed")

// Changed is the Data of an EventChanged event.
type Changed struct {
	Reason string
	Drift  time.Duration // wall minus monotonic elapsed; zero for timezone changes
}

type Config struct {
	CheckInterval time.Duration
	JumpThreshold time.Duration
	ZoneinfoPath  string // empty disables the timezone watch
}

type Watcher struct {
	cfg Config
	bus eventbus.Bus
	log logx.Logger

	now      func() time.Time
	bootOnce sync.Once
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Watcher {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.JumpThreshold <= 0 {
		cfg.JumpThreshold = DefaultJumpThreshold
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{cfg: cfg, bus: bus, log: log, now: time.Now}
}

// Boot publishes EventBoot. Only the first call publishes.
func (w *Watcher) Boot() {
	w.bootOnce.Do(func() {
		w.bus.Publish(eventbus.Event{Type: EventBoot, Time: w.now()})
		w.log.Debug("boot signal published")
	})
}

func (w *Watcher) changed(reason string, drift time.Duration) {
	w.log.Info("clock changed", logx.String("reason", reason), logx.Duration("drift", drift))
	w.bus.Publish(eventbus.Event{Type: EventChanged, Time: w.now(), Data: Changed{Reason: reason, Drift: drift}})
}

// RunDrift compares elapsed wall time with elapsed monotonic time every
// CheckInterval until ctx is done.
func (w *Watcher) RunDrift(ctx context.Context) error {
	t := time.NewTicker(w.cfg.CheckInterval)
	defer t.Stop()

	prev := w.now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			cur := w.now()
			mono := cur.Sub(prev)
			wall := cur.Round(0).Sub(prev.Round(0))
			if drift, jumped := w.jumped(wall, mono); jumped {
				w.changed(ReasonWallClockJump, drift)
			}
			prev = cur
		}
	}
}

// jumped compares wall and monotonic elapsed time over one tick.
func (w *Watcher) jumped(wall, mono time.Duration) (time.Duration, bool) {
	drift := wall - mono
	if drift < 0 {
		return drift, -drift >= w.cfg.JumpThreshold
	}
	return drift, drift >= w.cfg.JumpThreshold
}

// RunZone watches the zoneinfo link until ctx is done. Missing files and
// watcher failures are returned so the caller can restart the loop.
func (w *Watcher) RunZone(ctx context.Context) error {
	path := w.cfg.ZoneinfoPath
	if path == "" {
		<-ctx.Done()
		return nil
	}
	if _, err := os.Lstat(path); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	// /etc/localtime is usually a symlink that gets replaced, so watch the directory.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return err
	}
	base := filepath.Base(path)
	target := readLink(path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errWatcherClosed
			}
			if filepath.Base(ev.Name) == base {
				debounce = time.After(zoneDebounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errWatcherClosed
			}
			w.log.Warn("zoneinfo watch error", logx.Err(err))
		case <-debounce:
			debounce = nil
			cur := readLink(path)
			if cur == target && cur != "" {
				continue
			}
			target = cur
			w.changed(ReasonTimezone, 0)
		}
	}
}

// readLink returns the symlink target, or "" for a regular file.
func readLink(path string) string {
	t, err := os.Readlink(path)
	if err != nil {
		return ""
	}
	return t
}
