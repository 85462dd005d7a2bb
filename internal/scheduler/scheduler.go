// Package scheduler runs periodic housekeeping jobs on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSessionSweepSpec is the default schedule for dropping idle
// concierge sessions.
const DefaultSessionSweepSpec = "@every 1m"

// DefaultDedupPurgeSpec is the default schedule for dropping expired contact
// form dedup records.
const DefaultDedupPurgeSpec = "@hourly"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates a cron scheduler using the standard 5-field parser
// plus descriptors such as "@hourly" and "@every 5m". Panicking jobs are
// recovered.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Scheduler{cron: c}
}

// AddJob schedules task under name. It returns an error if the
// expression is invalid.
func (s *Scheduler) AddJob(name, spec string, task func()) error {
	id, err := s.cron.AddFunc(spec, func() {
		slog.Debug("Scheduler.AddJob: running job", "name", name)
		task()
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	slog.Debug("Scheduler.AddJob: job scheduled", "name", name, "spec", spec, "id", id)
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.Debug("Scheduler.Run: stopped")
}
