package store

import (
	"sort"
	"sync"
	"time"

	"github.com/canmore-mixology/barkeep/internal/models"
	"github.com/canmore-mixology/barkeep/internal/util"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps everything in process memory. Data is lost on restart.
type InMemoryStore struct {
	mu       sync.Mutex
	contacts []models.ContactRequest
	receipts []models.Receipt
	jobs     map[string]*Job
	outbox   map[string]*OutboxMessage
	dedup    map[string]*DedupRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		jobs:   make(map[string]*Job),
		outbox: make(map[string]*OutboxMessage),
		dedup:  make(map[string]*DedupRecord),
	}
}

func (s *InMemoryStore) AddContactRequest(req models.ContactRequest) error {
	stampContact(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append(s.contacts, req)
	return nil
}

// SaveContactRecord writes everything under one lock, so readers never see
// a request without its notifications.
func (s *InMemoryStore) SaveContactRecord(rec ContactRecord) error {
	stampContact(&rec.Request)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append(s.contacts, rec.Request)
	for _, m := range rec.Notifications {
		s.insertOutbox(m)
	}
	if rec.Reminder != nil {
		s.insertJob(*rec.Reminder)
	}
	return nil
}

func (s *InMemoryStore) GetContactRequest(id string) (*models.ContactRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ListContactRequests() ([]models.ContactRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ContactRequest(nil), s.contacts...), nil
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Receipt(nil), s.receipts...), nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

func (s *InMemoryStore) EnqueueJob(kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertJob(PendingJob{Kind: kind, RunAt: runAt, PayloadJSON: payloadJSON, DedupeKey: dedupeKey}), nil
}

// insertJob requires s.mu.
func (s *InMemoryStore) insertJob(p PendingJob) string {
	if p.DedupeKey != "" {
		for _, j := range s.jobs {
			if j.DedupeKey == p.DedupeKey && (j.Status == JobStatusQueued || j.Status == JobStatusRunning) {
				return j.ID
			}
		}
	}
	now := time.Now()
	j := &Job{
		ID:          util.GenerateJobID(),
		Kind:        p.Kind,
		RunAt:       p.RunAt,
		PayloadJSON: p.PayloadJSON,
		Status:      JobStatusQueued,
		MaxAttempts: JobMaxAttempts,
		DedupeKey:   p.DedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[j.ID] = j
	return j.ID
}

func (s *InMemoryStore) ClaimDueJobs(now time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*Job
	for _, j := range s.jobs {
		if j.Status == JobStatusQueued && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].RunAt.Before(due[b].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]Job, 0, len(due))
	for _, j := range due {
		locked := now
		j.Status = JobStatusRunning
		j.LockedAt = &locked
		j.UpdatedAt = now
		out = append(out, *j)
	}
	return out, nil
}

func (s *InMemoryStore) CompleteJob(id string) error {
	return s.updateJob(id, func(j *Job) {
		j.Status = JobStatusDone
		j.LockedAt = nil
	})
}

func (s *InMemoryStore) FailJob(id string, errMsg string, nextRunAt time.Time) error {
	return s.updateJob(id, func(j *Job) {
		j.Attempt++
		j.LastError = errMsg
		j.LockedAt = nil
		if j.Attempt >= j.MaxAttempts {
			j.Status = JobStatusFailed
			return
		}
		j.Status = JobStatusQueued
		j.RunAt = nextRunAt
	})
}

func (s *InMemoryStore) CancelJob(id string) error {
	return s.updateJob(id, func(j *Job) {
		j.Status = JobStatusCanceled
		j.LockedAt = nil
	})
}

func (s *InMemoryStore) updateJob(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(j)
	j.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) RequeueStaleRunningJobs(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == JobStatusRunning && j.LockedAt != nil && j.LockedAt.Before(staleBefore) {
			j.Status = JobStatusQueued
			j.LockedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetJob(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *InMemoryStore) EnqueueOutboxMessage(channel, kind, payloadJSON, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertOutbox(PendingMessage{Channel: channel, Kind: kind, PayloadJSON: payloadJSON, DedupeKey: dedupeKey}), nil
}

// insertOutbox requires s.mu.
func (s *InMemoryStore) insertOutbox(p PendingMessage) string {
	if p.DedupeKey != "" {
		for _, m := range s.outbox {
			if m.DedupeKey == p.DedupeKey && (m.Status == OutboxStatusQueued || m.Status == OutboxStatusSending) {
				return m.ID
			}
		}
	}
	now := time.Now()
	m := &OutboxMessage{
		ID:          util.GenerateOutboxID(),
		Channel:     p.Channel,
		Kind:        p.Kind,
		PayloadJSON: p.PayloadJSON,
		Status:      OutboxStatusQueued,
		DedupeKey:   p.DedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.outbox[m.ID] = m
	return m.ID
}

func (s *InMemoryStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*OutboxMessage
	for _, m := range s.outbox {
		if m.Status == OutboxStatusQueued && (m.NextAttemptAt == nil || !m.NextAttemptAt.After(now)) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].CreatedAt.Before(due[b].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]OutboxMessage, 0, len(due))
	for _, m := range due {
		locked := now
		m.Status = OutboxStatusSending
		m.LockedAt = &locked
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(id string) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusSent
		m.LockedAt = nil
	})
}

func (s *InMemoryStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		next := nextAttemptAt
		m.Status, m.Attempts = outboxFailureState(m.Attempts)
		m.LastError = errMsg
		m.NextAttemptAt = &next
		m.LockedAt = nil
	})
}

func (s *InMemoryStore) updateOutbox(id string, fn func(*OutboxMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return ErrNotFound
	}
	fn(m)
	m.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.outbox {
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) IsDuplicate(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dedup[key]
	return ok, nil
}

func (s *InMemoryStore) RecordSubmission(key, scope string, at time.Time, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[key]; ok && !expired(rec.ReceivedAt, at, ttl) {
		return false, nil
	}
	s.dedup[key] = &DedupRecord{Key: key, Scope: scope, ReceivedAt: at}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dedup[key]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	rec.ProcessedAt = &now
	return nil
}

func (s *InMemoryStore) ReleaseSubmission(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[key]; ok && rec.ProcessedAt == nil {
		delete(s.dedup, key)
	}
	return nil
}

func (s *InMemoryStore) PurgeSubmissions(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.dedup {
		if rec.ReceivedAt.Before(before) {
			delete(s.dedup, k)
			n++
		}
	}
	return n, nil
}
