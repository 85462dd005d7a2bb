package store_test

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/canmore-mixology/barkeep/internal/contact"
	"github.com/canmore-mixology/barkeep/internal/messaging"
	"github.com/canmore-mixology/barkeep/internal/models"
	"github.com/canmore-mixology/barkeep/internal/store"
)

func openSQLite(t *testing.T, path string) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(store.WithSQLiteDSN(path))
	if err != nil {
		t.Fatalf("NewSQLiteStore(%s) failed: %v", path, err)
	}
	return s
}

func weddingRequest(eventDate string) models.ContactRequest {
	return models.ContactRequest{
		Name:         "Priya Natarajan",
		Email:        "priya@example.com",
		EventDate:    eventDate,
		EventDetails: "Wedding, 120 guests, Banff",
		Message:      "Two signature cocktails and a zero-proof menu, please.",
	}
}

// waitFor polls cond every 20ms until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// An event reminder claimed by a process that died is picked up after a
// restart and turned into exactly one reminder notification.
func TestEventReminderSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "barkeep.db")
	channels := []string{models.ChannelLog}

	// Submitted three days ago for an event today, so the 48h reminder is due.
	today := time.Now().UTC().Format("2006-01-02")
	submittedAt := time.Now().Add(-72 * time.Hour)

	s1 := openSQLite(t, dbPath)
	svc := contact.NewService(s1,
		contact.WithDelay(0),
		contact.WithChannels(channels),
		contact.WithReminderLead(48*time.Hour),
		contact.WithClock(func() time.Time { return submittedAt }),
	)
	if _, status := svc.Submit(context.Background(), weddingRequest(today), ""); status != http.StatusOK {
		t.Fatalf("Submit returned %d", status)
	}
	requests, _ := s1.ListContactRequests()
	if len(requests) != 1 {
		t.Fatalf("expected one stored request, got %d", len(requests))
	}
	requestID := requests[0].ID

	// The old process claimed the reminder ten minutes ago and never finished.
	claimed, err := s1.ClaimDueJobs(time.Now().Add(-10*time.Minute), 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("expected to claim the reminder, got %d jobs, err %v", len(claimed), err)
	}
	var payload models.ReminderPayload
	if err := json.Unmarshal([]byte(claimed[0].PayloadJSON), &payload); err != nil {
		t.Fatalf("reminder payload: %v", err)
	}
	if payload.ContactRequestID != requestID || payload.EventDate != today {
		t.Fatalf("unexpected reminder payload %+v", payload)
	}
	jobID := claimed[0].ID
	s1.Close()

	s2 := openSQLite(t, dbPath)
	defer s2.Close()
	runner := store.NewJobRunner(s2, 20*time.Millisecond)
	contact.RegisterJobHandlers(runner, s2, channels)
	if err := runner.RecoverStaleJobs(); err != nil {
		t.Fatalf("RecoverStaleJobs failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	waitFor(t, "reminder job to complete", func() bool {
		j, _ := s2.GetJob(jobID)
		return j != nil && j.Status == store.JobStatusDone
	})
	cancel()

	j, _ := s2.GetJob(jobID)
	if j.Attempt != 0 {
		t.Errorf("reminder should succeed on its first run after restart, got attempt %d", j.Attempt)
	}
	msgs, _ := s2.ClaimDueOutboxMessages(time.Now(), 10)
	reminders := 0
	for _, m := range msgs {
		if m.Kind == models.NotificationEventReminder {
			reminders++
			if m.DedupeKey != models.NotificationEventReminder+":"+models.ChannelLog+":"+requestID {
				t.Errorf("unexpected reminder dedupe key %q", m.DedupeKey)
			}
		}
	}
	if reminders != 1 {
		t.Errorf("expected exactly one reminder notification, got %d", reminders)
	}
}

// A quote notification left in sending by a crash is delivered through the
// dispatcher after a restart and leaves one receipt.
func TestQuoteNotificationSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "barkeep.db")

	s1 := openSQLite(t, dbPath)
	svc := contact.NewService(s1, contact.WithDelay(0), contact.WithReminderLead(0))
	if _, status := svc.Submit(context.Background(), weddingRequest(""), ""); status != http.StatusOK {
		t.Fatalf("Submit returned %d", status)
	}
	claimed, err := s1.ClaimDueOutboxMessages(time.Now().Add(-10*time.Minute), 10)
	if err != nil || len(claimed) != 1 || claimed[0].Kind != models.NotificationQuoteRequest {
		t.Fatalf("expected to claim one quote notification, got %+v, err %v", claimed, err)
	}
	var req models.ContactRequest
	if err := json.Unmarshal([]byte(claimed[0].PayloadJSON), &req); err != nil || req.Email != "priya@example.com" {
		t.Fatalf("notification payload should carry the request, got %+v, err %v", req, err)
	}
	s1.Close()

	s2 := openSQLite(t, dbPath)
	defer s2.Close()
	dispatcher := messaging.NewDispatcher(s2)
	if err := dispatcher.Register(messaging.NewLogService(), "events@canmore-mixology.test"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := dispatcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sender := store.NewOutboxSender(s2, dispatcher.Send, 20*time.Millisecond)
	if err := sender.RecoverStaleMessages(); err != nil {
		t.Fatalf("RecoverStaleMessages failed: %v", err)
	}
	go sender.Run(ctx)

	waitFor(t, "delivery receipt", func() bool {
		receipts, _ := s2.GetReceipts()
		return len(receipts) > 0
	})
	cancel()
	dispatcher.Stop()

	receipts, _ := s2.GetReceipts()
	if len(receipts) != 1 {
		t.Fatalf("expected one receipt, got %d", len(receipts))
	}
	if receipts[0].Channel != models.ChannelLog || receipts[0].Status != models.MessageStatusSent {
		t.Errorf("unexpected receipt %+v", receipts[0])
	}
	if left, _ := s2.ClaimDueOutboxMessages(time.Now().Add(time.Hour), 10); len(left) != 0 {
		t.Errorf("expected the outbox to be drained, got %d messages", len(left))
	}
}

// A double-clicked contact form is folded across a restart while its
// payload window is open, and accepted again once it has closed.
func TestContactDedupSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "barkeep.db")
	now := time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)
	clock := contact.WithClock(func() time.Time { return now })
	opts := []contact.Option{contact.WithDelay(0), contact.WithReminderLead(0), contact.WithDedupWindow(10 * time.Minute), clock}

	s1 := openSQLite(t, dbPath)
	contact.NewService(s1, opts...).Submit(context.Background(), weddingRequest("2026-08-15"), "")
	s1.Close()

	s2 := openSQLite(t, dbPath)
	defer s2.Close()
	svc := contact.NewService(s2, opts...)

	now = now.Add(2 * time.Minute)
	svc.Submit(context.Background(), weddingRequest("2026-08-15"), "")
	if list, _ := s2.ListContactRequests(); len(list) != 1 {
		t.Fatalf("resubmission after restart should be folded, got %d requests", len(list))
	}

	now = now.Add(15 * time.Minute)
	svc.Submit(context.Background(), weddingRequest("2026-08-15"), "")
	if list, _ := s2.ListContactRequests(); len(list) != 2 {
		t.Errorf("resubmission after the window should be stored, got %d requests", len(list))
	}
}
