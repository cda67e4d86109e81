package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/skill-translator/pkg/icron"
)

// SubjectSource lists the subjects to pre-translate on each scheduled run.
type SubjectSource func(ctx context.Context) ([]Subject, error)

// Scheduler runs batch pre-translation of a subject source on a cron
// schedule. Overlapping runs, scheduled or manual, share one execution.
type Scheduler struct {
	svc      *Service
	source   SubjectSource
	cron     *cron.Cron
	cronExpr string
	logger   Logger

	group singleflight.Group

	mu      sync.RWMutex
	lastRun time.Time
	last    Progress
	lastErr error
}

func NewScheduler(svc *Service, source SubjectSource, c *cron.Cron, cronExpr string) *Scheduler {
	return &Scheduler{
		svc:      svc,
		source:   source,
		cron:     c,
		cronExpr: cronExpr,
		logger:   svc.logger,
	}
}

// Schedule registers the run with the cron. An empty expression schedules
// nothing.
func (s *Scheduler) Schedule(ctx context.Context) error {
	if s.cronExpr == "" {
		return nil
	}
	s.logger.Info("Scheduling pretranslation with %q", s.cronExpr)

	_, err := s.cron.AddFunc(s.cronExpr, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Scheduled pretranslation failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule pretranslation: %w", err)
	}
	return nil
}

// RunOnce lists subjects and runs a batch over them. Concurrent callers wait
// for the run already in progress and receive its result.
func (s *Scheduler) RunOnce(ctx context.Context) (Progress, error) {
	v, err, _ := s.group.Do("pretranslate", func() (any, error) {
		started := time.Now()
		subjects, err := s.source(ctx)
		if err != nil {
			s.record(started, Progress{}, err)
			return Progress{}, fmt.Errorf("failed to list subjects: %w", err)
		}
		s.logger.Info("Pretranslating %d subjects", len(subjects))

		p, err := s.svc.RunBatchPretranslate(ctx, subjects, func(p Progress) {
			s.logger.Debug("Pretranslation progress %d/%d (%d failed): %s %s",
				p.Completed, p.Total, p.Failed, p.CurrentSubject, p.CurrentField)
		})
		s.record(started, p, err)
		if err != nil {
			return p, err
		}
		s.logger.Info("Pretranslation finished: %d/%d done, %d failed in %s",
			p.Completed, p.Total, p.Failed, time.Since(started).Round(time.Millisecond))
		return p, nil
	})
	p, _ := v.(Progress)
	return p, err
}

func (s *Scheduler) record(at time.Time, p Progress, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = at
	s.last = p
	s.lastErr = err
}

// ScheduleStatus describes the schedule and the most recent run.
type ScheduleStatus struct {
	Enabled  bool               `json:"enabled"`
	Trigger  *icron.TriggerInfo `json:"trigger,omitempty"`
	LastRun  time.Time          `json:"last_run,omitempty"`
	Progress Progress           `json:"progress"`
	Error    string             `json:"error,omitempty"`
}

func (s *Scheduler) Status(now time.Time) (ScheduleStatus, error) {
	s.mu.RLock()
	st := ScheduleStatus{
		Enabled:  s.cronExpr != "",
		LastRun:  s.lastRun,
		Progress: s.last,
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	s.mu.RUnlock()

	if !st.Enabled {
		return st, nil
	}
	info, err := icron.GetTriggerInfo(s.cronExpr, now)
	if err != nil {
		return st, err
	}
	st.Trigger = info
	return st, nil
}
