package wakeup

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"routined/internal/eventbus"
	logx "routined/pkg/logx"
)

var (
	ErrEmptyID = errors.New("wakeup: routine id required")
	ErrZeroAt  = errors.New("wakeup: trigger time required")
)

// Register arms a one-shot alarm for routineID, replacing any earlier one.
// When the service is stopped the definition is stored and armed on Start.
func (s *Service) Register(ctx context.Context, routineID string, at time.Time) error {
	routineID = strings.TrimSpace(routineID)
	if routineID == "" {
		return ErrEmptyID
	}
	if at.IsZero() {
		return ErrZeroAt
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()
	s.stopTimerLocked(routineID)
	s.seq++
	s.alarms[routineID] = alarmDef{at: at, ver: s.seq}
	if s.running {
		s.armLocked(routineID, s.alarms[routineID])
	}
	return nil
}

// Unregister removes the alarm for routineID. Unknown ids are not an error.
func (s *Service) Unregister(ctx context.Context, routineID string) error {
	routineID = strings.TrimSpace(routineID)
	if routineID == "" {
		return ErrEmptyID
	}
	s.tmu.Lock()
	defer s.tmu.Unlock()
	s.stopTimerLocked(routineID)
	delete(s.alarms, routineID)
	return nil
}

// Alarms lists pending alarms, soonest first.
func (s *Service) Alarms() []Alarm {
	s.tmu.Lock()
	out := make([]Alarm, 0, len(s.alarms))
	for id, d := range s.alarms {
		_, armed := s.timers[id]
		out = append(out, Alarm{RoutineID: id, At: d.at, Armed: armed})
	}
	s.tmu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].RoutineID < out[j].RoutineID
	})
	return out
}

func (s *Service) stopTimerLocked(id string) {
	if t, ok := s.timers[id]; ok {
		_ = t.Stop()
		delete(s.timers, id)
	}
}

// armLocked starts the runtime timer for a definition. Call with s.tmu held.
func (s *Service) armLocked(id string, d alarmDef) {
	delay := d.at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(id, d.ver) })
}

func (s *Service) fire(id string, ver uint64) {
	s.tmu.Lock()
	d, ok := s.alarms[id]
	// A replaced or removed alarm leaves a stale callback behind; ignore it.
	if !ok || d.ver != ver || !s.running {
		s.tmu.Unlock()
		return
	}
	delete(s.alarms, id)
	delete(s.timers, id)
	s.tmu.Unlock()

	ev := FiredEvent{RoutineID: id, At: d.at, FiredAt: s.now()}
	s.fired.Add(1)
	s.log.Info("reminder fired",
		logx.String("routine", id),
		logx.Time("at", d.at),
		logx.Duration("late", ev.Late()),
	)
	s.bus.Publish(eventbus.Event{Type: EventReminderFired, Time: ev.FiredAt, Data: ev})
}

// rebuildTimers arms every stored alarm and reports how many were armed.
func (s *Service) rebuildTimers() int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.running = true

	now := s.now()
	for id, d := range s.alarms {
		if now.Sub(d.at) > s.grace {
			delete(s.alarms, id)
			s.dropped.Add(1)
			s.log.Warn("dropping overdue alarm", logx.String("routine", id), logx.Time("at", d.at))
			continue
		}
		s.armLocked(id, d)
	}
	return len(s.timers)
}
