package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// OutboxSendFunc delivers one message. messaging.Dispatcher.Send is the
// production implementation.
type OutboxSendFunc func(ctx context.Context, msg OutboxMessage) error

// OutboxSender drains the notification outbox through send.
type OutboxSender struct {
	repo     OutboxRepo
	send     OutboxSendFunc
	interval time.Duration
}

// NewOutboxSender polls repo every interval, or every 5s when interval is not
// positive.
func NewOutboxSender(repo OutboxRepo, send OutboxSendFunc, interval time.Duration) *OutboxSender {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxSender{repo: repo, send: send, interval: interval}
}

// RecoverStaleMessages requeues notifications a previous process was still
// sending when it stopped. Call it once before Run.
func (s *OutboxSender) RecoverStaleMessages() error {
	n, err := s.repo.RequeueStaleSendingMessages(time.Now().Add(-staleClaimAge))
	if err != nil {
		return fmt.Errorf("requeue stale outbox messages: %w", err)
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStaleMessages: messages requeued", "count", n)
	}
	return nil
}

// Run blocks until ctx is done.
func (s *OutboxSender) Run(ctx context.Context) {
	pollLoop(ctx, "OutboxSender", s.interval, s.sendDue)
}

func (s *OutboxSender) sendDue(ctx context.Context) {
	now := time.Now()
	msgs, err := s.repo.ClaimDueOutboxMessages(now, claimBatch)
	if err != nil {
		slog.Error("OutboxSender.sendDue: claim failed", "error", err)
		return
	}
	for _, m := range msgs {
		if err := s.send(ctx, m); err != nil {
			slog.Error("OutboxSender.sendDue: delivery failed", "id", m.ID, "channel", m.Channel, "kind", m.Kind, "attempt", m.Attempts+1, "error", err)
			if ferr := s.repo.FailOutboxMessage(m.ID, err.Error(), now.Add(backoff(outboxBaseBackoff, m.Attempts))); ferr != nil {
				slog.Error("OutboxSender.sendDue: recording failure failed", "id", m.ID, "error", ferr)
			}
			continue
		}
		if err := s.repo.MarkOutboxMessageSent(m.ID); err != nil {
			slog.Error("OutboxSender.sendDue: mark sent failed", "id", m.ID, "error", err)
			continue
		}
		slog.Debug("OutboxSender.sendDue: delivered", "id", m.ID, "channel", m.Channel, "kind", m.Kind)
	}
}
