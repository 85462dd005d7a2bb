// Package contact handles quote/booking requests submitted through the
// contact form: validation, persistence, operator notification and event
// reminders.
package contact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/canmore-mixology/barkeep/internal/models"
	"github.com/canmore-mixology/barkeep/internal/store"
	"github.com/canmore-mixology/barkeep/internal/util"
)

// Defaults for Opts.
const (
	DefaultDelay        = time.Second
	DefaultReminderLead = 48 * time.Hour
	// DefaultDedupWindow is how long an identical payload without an
	// Idempotency-Key counts as a resubmission.
	DefaultDedupWindow = 10 * time.Minute
	// DefaultKeyTTL is how long an Idempotency-Key is remembered.
	DefaultKeyTTL = 24 * time.Hour
)

const dedupScope = "contact"

// Opts holds configuration for the contact service.
type Opts struct {
	Delay        time.Duration
	ReminderLead time.Duration
	Channels     []string
	DedupWindow  time.Duration
	KeyTTL       time.Duration
	Clock        func() time.Time
}

// Option defines a function that configures Opts.
type Option func(*Opts)

// WithDelay sets the artificial delay applied before acknowledging.
func WithDelay(d time.Duration) Option {
	return func(o *Opts) {
		o.Delay = d
	}
}

// WithReminderLead sets how long before the event the reminder fires.
// Zero disables reminders.
func WithReminderLead(d time.Duration) Option {
	return func(o *Opts) {
		o.ReminderLead = d
	}
}

// WithChannels sets the notification channels each request is sent to.
func WithChannels(channels []string) Option {
	return func(o *Opts) {
		o.Channels = channels
	}
}

// WithDedupWindow sets how long identical payloads are folded together.
func WithDedupWindow(d time.Duration) Option {
	return func(o *Opts) {
		o.DedupWindow = d
	}
}

// WithKeyTTL sets how long an Idempotency-Key is honoured.
func WithKeyTTL(d time.Duration) Option {
	return func(o *Opts) {
		o.KeyTTL = d
	}
}

// WithClock replaces time.Now for dedup windows, timestamps and reminder
// scheduling.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = now
	}
}

// Service processes contact form submissions.
type Service struct {
	store    store.Store
	delay    time.Duration
	lead     time.Duration
	channels []string
	window   time.Duration
	keyTTL   time.Duration
	now      func() time.Time
}

// NewService creates a contact service backed by st.
func NewService(st store.Store, opts ...Option) *Service {
	cfg := Opts{
		Delay:        DefaultDelay,
		ReminderLead: DefaultReminderLead,
		Channels:     []string{models.ChannelLog},
		DedupWindow:  DefaultDedupWindow,
		KeyTTL:       DefaultKeyTTL,
		Clock:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		store:    st,
		delay:    cfg.Delay,
		lead:     cfg.ReminderLead,
		channels: cfg.Channels,
		window:   cfg.DedupWindow,
		keyTTL:   cfg.KeyTTL,
		now:      cfg.Clock,
	}
}

// Submit validates and records one contact request and returns the
// acknowledgement with its HTTP status. A resubmission with the same
// idempotency key within the key TTL, or the same payload within the dedup
// window when no key is given, is acknowledged without being recorded again.
func (s *Service) Submit(ctx context.Context, req models.ContactRequest, idempotencyKey string) (models.ContactResponse, int) {
	req.ID = ""
	req.CreatedAt = time.Time{}
	req.Normalize()
	if err := req.Validate(); err != nil {
		ve, ok := models.IsValidationError(err)
		if !ok {
			slog.Error("Service.Submit: validator failed", "error", err)
			return unavailable(), http.StatusInternalServerError
		}
		slog.Debug("Service.Submit: validation failed", "fields", ve.Fields)
		return models.ContactResponse{
			Success: false,
			Message: models.ContactValidationFailedMessage,
			Errors:  ve.Fields,
		}, http.StatusBadRequest
	}

	slog.Info("Service.Submit: contact form submission received",
		"name", req.Name, "email", req.Email, "eventDate", req.EventDate,
		"eventDetails", req.EventDetails, "message", req.Message)

	key, ttl := strings.TrimSpace(idempotencyKey), s.keyTTL
	if key == "" {
		key, ttl = payloadKey(req), s.window
	}
	isNew, err := s.store.RecordSubmission(key, dedupScope, s.now(), ttl)
	if err != nil {
		slog.Error("Service.Submit: dedup check failed", "error", err)
		return unavailable(), http.StatusInternalServerError
	}
	if !isNew {
		slog.Info("Service.Submit: duplicate submission acknowledged", "email", req.Email)
		if err := s.wait(ctx); err != nil {
			return unavailable(), http.StatusServiceUnavailable
		}
		return success(), http.StatusOK
	}

	if err := s.record(req); err != nil {
		slog.Error("Service.Submit: failed to record contact request", "email", req.Email, "error", err)
		if rerr := s.store.ReleaseSubmission(key); rerr != nil {
			slog.Warn("Service.Submit: failed to release dedup key", "error", rerr)
		}
		return unavailable(), http.StatusInternalServerError
	}
	if err := s.store.MarkProcessed(key); err != nil {
		slog.Warn("Service.Submit: failed to mark submission processed", "error", err)
	}

	if err := s.wait(ctx); err != nil {
		// The request is recorded; the client gave up waiting.
		slog.Debug("Service.Submit: client went away during delay", "error", err)
		return unavailable(), http.StatusServiceUnavailable
	}
	return success(), http.StatusOK
}

// record writes req together with one notification per channel and, when
// the event date is far enough ahead, the event reminder. Either all of it
// is stored or none of it.
func (s *Service) record(req models.ContactRequest) error {
	req.ID = util.GenerateContactRequestID()
	req.CreatedAt = s.now().UTC()

	notes, err := notificationMessages(s.channels, models.NotificationQuoteRequest, req)
	if err != nil {
		return err
	}
	reminder, err := s.reminderJob(req)
	if err != nil {
		return err
	}
	rec := store.ContactRecord{Request: req, Notifications: notes, Reminder: reminder}
	if err := s.store.SaveContactRecord(rec); err != nil {
		return fmt.Errorf("failed to store contact request: %w", err)
	}
	if reminder != nil {
		slog.Info("Service.record: event reminder scheduled", "id", req.ID, "runAt", reminder.RunAt)
	}
	return nil
}

// reminderJob returns nil when reminders are off, the date is free-form, or
// the reminder time has already passed.
func (s *Service) reminderJob(req models.ContactRequest) (*store.PendingJob, error) {
	if s.lead <= 0 {
		return nil, nil
	}
	eventAt, ok := req.ParsedEventDate()
	if !ok {
		return nil, nil
	}
	runAt := eventAt.Add(-s.lead)
	if !runAt.After(s.now()) {
		slog.Debug("Service.record: event too close for a reminder", "id", req.ID, "eventDate", req.EventDate)
		return nil, nil
	}
	payload, err := json.Marshal(models.ReminderPayload{ContactRequestID: req.ID, EventDate: req.EventDate})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reminder payload: %w", err)
	}
	return &store.PendingJob{
		Kind:        models.NotificationEventReminder,
		RunAt:       runAt,
		PayloadJSON: string(payload),
		DedupeKey:   "reminder:" + req.ID,
	}, nil
}

// PurgeExpiredSubmissions drops dedup records that no window can match any
// more. It runs on the housekeeping scheduler.
func (s *Service) PurgeExpiredSubmissions() (int, error) {
	keep := s.keyTTL
	if s.window > keep {
		keep = s.window
	}
	if keep <= 0 {
		return 0, nil
	}
	n, err := s.store.PurgeSubmissions(s.now().Add(-keep))
	if err != nil {
		return 0, fmt.Errorf("failed to purge submissions: %w", err)
	}
	return n, nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueNotifications queues one outbox message of kind per channel, with
// the contact request as payload.
func EnqueueNotifications(repo store.OutboxRepo, channels []string, kind string, req models.ContactRequest) error {
	msgs, err := notificationMessages(channels, kind, req)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if _, err := repo.EnqueueOutboxMessage(m.Channel, m.Kind, m.PayloadJSON, m.DedupeKey); err != nil {
			return fmt.Errorf("failed to enqueue %s notification on %s: %w", kind, m.Channel, err)
		}
	}
	return nil
}

// notificationMessages builds one outbox message of kind per channel. The
// dedupe key "kind:channel:id" keeps a retried job from queueing twice.
func notificationMessages(channels []string, kind string, req models.ContactRequest) ([]store.PendingMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	msgs := make([]store.PendingMessage, 0, len(channels))
	for _, ch := range channels {
		msgs = append(msgs, store.PendingMessage{
			Channel:     ch,
			Kind:        kind,
			PayloadJSON: string(payload),
			DedupeKey:   kind + ":" + ch + ":" + req.ID,
		})
	}
	return msgs, nil
}

// payloadKey hashes the normalized submission.
func payloadKey(req models.ContactRequest) string {
	h := sha256.New()
	for _, f := range []string{strings.ToLower(req.Email), req.Name, req.EventDate, req.EventDetails, req.Message} {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

func success() models.ContactResponse {
	return models.ContactResponse{Success: true, Message: models.ContactSuccessMessage}
}

func unavailable() models.ContactResponse {
	return models.ContactResponse{Success: false, Message: models.ContactUnavailableMessage}
}
