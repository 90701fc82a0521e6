package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron *cron.Cron
	jobs *Jobs
	log  *logrus.Entry
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithField("component", "scheduler")
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(entry))))
	return &Scheduler{cron: c, jobs: jobs, log: entry}
}

// Start registers the jobs and starts the cron scheduler. A job with a blank
// or invalid schedule is skipped.
func (s *Scheduler) Start() {
	s.register("pending connection expiry", s.jobs.config.ConnectionExpirySchedule, s.jobs.ExpireStalePendingConnections)
	s.register("refund redispatch", s.jobs.config.RefundDispatchSchedule, s.jobs.RedispatchRefundRequests)
	s.cron.Start()
}

func (s *Scheduler) register(name, schedule string, job func()) {
	if schedule == "" {
		s.log.WithField("job", name).Info("job disabled; no schedule configured")
		return
	}
	if _, err := s.cron.AddFunc(schedule, job); err != nil {
		s.log.WithError(err).WithField("job", name).Error("failed to schedule job")
		return
	}
	s.log.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("scheduled job")
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
