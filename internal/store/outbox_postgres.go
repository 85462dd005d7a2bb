package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/canmore-mixology/barkeep/internal/util"
)

// Compile-time check that PostgresStore implements OutboxRepo.
var _ OutboxRepo = (*PostgresStore)(nil)

func (s *PostgresStore) EnqueueOutboxMessage(channel, kind, payloadJSON, dedupeKey string) (string, error) {
	return postgresInsertOutbox(s.db, PendingMessage{Channel: channel, Kind: kind, PayloadJSON: payloadJSON, DedupeKey: dedupeKey})
}

const postgresLiveOutbox = `SELECT id FROM outbox_messages WHERE dedupe_key = $1 AND status IN ('queued', 'sending')`

func postgresInsertOutbox(q execer, m PendingMessage) (string, error) {
	existing, ok, err := findLive(q, postgresLiveOutbox, m.DedupeKey)
	if err != nil {
		return "", fmt.Errorf("outbox dedupe lookup for %s failed: %w", m.DedupeKey, err)
	}
	if ok {
		slog.Debug("PostgresStore.EnqueueOutboxMessage: already queued", "dedupeKey", m.DedupeKey, "id", existing)
		return existing, nil
	}

	id := util.GenerateOutboxID()
	now := time.Now()
	if _, err := q.Exec(
		`INSERT INTO outbox_messages (id, channel, kind, payload_json, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'queued', 0, $5, $6, $6)`,
		id, m.Channel, m.Kind, m.PayloadJSON, nilIfEmpty(m.DedupeKey), now,
	); err != nil {
		return "", fmt.Errorf("insert %s message for %s failed: %w", m.Kind, m.Channel, err)
	}
	slog.Debug("PostgresStore.EnqueueOutboxMessage", "id", id, "channel", m.Channel, "kind", m.Kind)
	return id, nil
}

func (s *PostgresStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	rows, err := s.db.Query(
		`UPDATE outbox_messages SET status = 'sending', locked_at = $1, updated_at = $1
		 WHERE id IN (
		   SELECT id FROM outbox_messages WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		   ORDER BY created_at ASC LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+outboxColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	defer rows.Close()
	return scanOutboxMessages(rows)
}

func (s *PostgresStore) MarkOutboxMessageSent(id string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = $1 WHERE id = $2`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox sent failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	var attempts int
	if err := s.db.QueryRow(`SELECT attempts FROM outbox_messages WHERE id = $1`, id).Scan(&attempts); err != nil {
		return fmt.Errorf("fail outbox lookup failed: %w", err)
	}
	status, attempts := outboxFailureState(attempts)
	_, err := s.db.Exec(
		`UPDATE outbox_messages SET status = $1, attempts = $2, last_error = $3, next_attempt_at = $4, locked_at = NULL, updated_at = $5 WHERE id = $6`,
		status, attempts, errMsg, nextAttemptAt, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("fail outbox message failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	now := time.Now()
	result, err := s.db.Exec(
		`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = $1 WHERE status = 'sending' AND locked_at < $2`,
		now, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleSendingMessages", "requeued", n)
	}
	return int(n), nil
}
