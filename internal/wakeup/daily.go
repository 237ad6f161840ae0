package wakeup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"routined/internal/routine"
	logx "routined/pkg/logx"
)

// AddDaily registers job to run every day at atHHMM in the service timezone.
// A job with the same name is replaced. Overlapping runs are skipped.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	at, err := routine.ParseClock(atHHMM)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeJobLocked(name)
	s.jobs = append(s.jobs, jobDef{
		name:    name,
		at:      at.String(),
		spec:    fmt.Sprintf("%d %d * * *", at.Minute, at.Hour),
		timeout: timeout,
		run:     job,
	})
	if s.c != nil {
		s.addJobLocked(&s.jobs[len(s.jobs)-1])
	}
	return nil
}

// Remove unregisters the daily job with the given name.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeJobLocked(strings.TrimSpace(name))
}

func (s *Service) removeJobLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.jobs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.jobs[n] = d
		n++
	}
	s.jobs = s.jobs[:n]
	return removed
}

// addJobLocked schedules d on the running cron. Call with s.mu held.
func (s *Service) addJobLocked(d *jobDef) {
	name, timeout, run := d.name, d.timeout, d.run
	base := s.base
	log := s.log.With(logx.String("job", name))
	id, err := s.c.AddFunc(d.spec, func() {
		ctx := base
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(base, timeout)
			defer cancel()
		}
		start := time.Now()
		if err := run(ctx); err != nil {
			log.Warn("daily job failed", logx.Err(err), logx.Duration("took", time.Since(start)))
			return
		}
		log.Debug("daily job done", logx.Duration("took", time.Since(start)))
	})
	if err != nil {
		d.entryID = 0
		log.Error("daily job register failed", logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = id
	log.Debug("daily job registered", logx.String("at", d.at), logx.Time("next", s.c.Entry(id).Next))
}
