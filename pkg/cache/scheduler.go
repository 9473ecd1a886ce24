package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultMaintenanceSchedule sweeps expired entries once a minute
const DefaultMaintenanceSchedule = "@every 1m"

// Scheduler runs periodic cache jobs on a cron schedule
type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Logger
}

// NewScheduler creates a scheduler with the maintenance sweep for m
// registered under spec. An empty spec uses DefaultMaintenanceSchedule.
func NewScheduler(m *Manager, spec string, log *logrus.Logger) (*Scheduler, error) {
	if log == nil {
		log = logrus.New()
	}
	if spec == "" {
		spec = DefaultMaintenanceSchedule
	}

	s := &Scheduler{
		cron: cron.New(),
		log:  log,
	}

	err := s.AddJob(spec, "cache maintenance", func(context.Context) error {
		removed := m.PerformMaintenance()
		if removed > 0 {
			log.WithField("removed", removed).Debug("expired cache entries swept")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// AddJob schedules fn under spec. Each run gets a context bounded by one
// minute; failures and panics are logged.
func (s *Scheduler) AddJob(spec, name string, fn func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.WithField("job", name).Errorf("scheduled job panicked: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.WithError(err).WithField("job", name).Warn("scheduled job failed")
			return
		}
		s.log.WithFields(logrus.Fields{
			"job":      name,
			"duration": time.Since(start).String(),
		}).Debug("scheduled job completed")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("cache scheduler started")
}

// Stop stops the scheduler and waits for running jobs or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
