package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// JobHandler runs one job given its PayloadJSON. An error schedules a retry.
type JobHandler func(ctx context.Context, payload string) error

const (
	jobBaseBackoff    = 30 * time.Second
	outboxBaseBackoff = 10 * time.Second
	maxBackoff        = time.Hour

	// staleClaimAge is how long a claim may be held before startup recovery
	// assumes its owner died.
	staleClaimAge = 5 * time.Minute
	claimBatch    = 10
)

// JobRunner claims due jobs and hands each to the handler for its kind.
// Barkeep registers a single kind, the event reminder.
type JobRunner struct {
	repo     JobRepo
	interval time.Duration

	mu       sync.RWMutex
	handlers map[string]JobHandler
}

// NewJobRunner polls repo every interval, or every 10s when interval is not
// positive.
func NewJobRunner(repo JobRepo, interval time.Duration) *JobRunner {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &JobRunner{repo: repo, interval: interval, handlers: make(map[string]JobHandler)}
}

// RegisterHandler routes jobs of kind to h. A later call replaces h.
func (r *JobRunner) RegisterHandler(kind string, h JobHandler) {
	r.mu.Lock()
	r.handlers[kind] = h
	r.mu.Unlock()
	slog.Debug("JobRunner.RegisterHandler", "kind", kind)
}

func (r *JobRunner) handler(kind string) (JobHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// RecoverStaleJobs requeues jobs a previous process claimed but never
// finished. Call it once before Run.
func (r *JobRunner) RecoverStaleJobs() error {
	n, err := r.repo.RequeueStaleRunningJobs(time.Now().Add(-staleClaimAge))
	if err != nil {
		return fmt.Errorf("requeue stale jobs: %w", err)
	}
	if n > 0 {
		slog.Info("JobRunner.RecoverStaleJobs: jobs requeued", "count", n)
	}
	return nil
}

// Run blocks until ctx is done.
func (r *JobRunner) Run(ctx context.Context) {
	pollLoop(ctx, "JobRunner", r.interval, r.runDue)
}

func (r *JobRunner) runDue(ctx context.Context) {
	now := time.Now()
	jobs, err := r.repo.ClaimDueJobs(now, claimBatch)
	if err != nil {
		slog.Error("JobRunner.runDue: claim failed", "error", err)
		return
	}
	for _, j := range jobs {
		r.runOne(ctx, now, j)
	}
}

func (r *JobRunner) runOne(ctx context.Context, now time.Time, j Job) {
	h, ok := r.handler(j.Kind)
	if !ok {
		slog.Warn("JobRunner.runOne: no handler for kind", "kind", j.Kind, "id", j.ID)
		r.retry(j, "no handler registered for kind: "+j.Kind, now.Add(time.Minute))
		return
	}

	slog.Debug("JobRunner.runOne: running", "id", j.ID, "kind", j.Kind, "attempt", j.Attempt)
	if err := h(ctx, j.PayloadJSON); err != nil {
		slog.Error("JobRunner.runOne: handler failed", "id", j.ID, "kind", j.Kind, "attempt", j.Attempt, "error", err)
		r.retry(j, err.Error(), now.Add(backoff(jobBaseBackoff, j.Attempt)))
		return
	}
	if err := r.repo.CompleteJob(j.ID); err != nil {
		slog.Error("JobRunner.runOne: complete failed", "id", j.ID, "error", err)
		return
	}
	slog.Debug("JobRunner.runOne: done", "id", j.ID, "kind", j.Kind)
}

func (r *JobRunner) retry(j Job, reason string, at time.Time) {
	if err := r.repo.FailJob(j.ID, reason, at); err != nil {
		slog.Error("JobRunner.retry: fail job failed", "id", j.ID, "error", err)
	}
}

// pollLoop calls tick every interval until ctx is done.
func pollLoop(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) {
	slog.Info(name+".Run: polling", "interval", interval)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info(name + ".Run: stopped")
			return
		case <-t.C:
			tick(ctx)
		}
	}
}

// backoff doubles base for every earlier attempt, up to maxBackoff. For jobs
// that is 30s, 1m, 2m and so on.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		return maxBackoff
	}
	if d := base << attempt; d < maxBackoff {
		return d
	}
	return maxBackoff
}
