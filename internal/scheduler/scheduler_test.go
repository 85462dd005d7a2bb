package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	if err := s.AddJob("sweep", "* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("sweep", DefaultSessionSweepSpec, func() {}); err != nil {
		t.Errorf("Expected descriptor to parse, got %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 jobs, got %d", s.Len())
	}
}

func TestSchedulerAddJobInvalidSpec(t *testing.T) {
	s := NewScheduler()
	err := s.AddJob("sweep", "every now and then", func() {})
	if err == nil {
		t.Fatal("Expected error for invalid cron expression")
	}
	if !strings.Contains(err.Error(), "sweep") {
		t.Errorf("error should name the job: %v", err)
	}
	// Six fields (with seconds) are rejected by the 5-field parser.
	if err := s.AddJob("sweep", "0 * * * * *", func() {}); err == nil {
		t.Error("Expected error for 6-field expression")
	}
}

func TestSchedulerRunExecutesJobs(t *testing.T) {
	s := NewScheduler()
	ran := make(chan struct{}, 10)
	if err := s.AddJob("tick", "@every 1s", func() { ran <- struct{}{} }); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSchedulerRecoversPanics(t *testing.T) {
	s := NewScheduler()
	ran := make(chan struct{}, 10)
	if err := s.AddJob("boom", "@every 1s", func() {
		ran <- struct{}{}
		panic("boom")
	}); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(3 * time.Second):
			t.Fatalf("job run %d missing after panic", i+1)
		}
	}
}
