package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/canmore-mixology/barkeep/internal/util"
)

// Compile-time check that SQLiteStore implements OutboxRepo.
var _ OutboxRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) EnqueueOutboxMessage(channel, kind, payloadJSON, dedupeKey string) (string, error) {
	return sqliteInsertOutbox(s.db, PendingMessage{Channel: channel, Kind: kind, PayloadJSON: payloadJSON, DedupeKey: dedupeKey})
}

const sqliteLiveOutbox = `SELECT id FROM outbox_messages WHERE dedupe_key = ? AND status IN ('queued', 'sending')`

func sqliteInsertOutbox(q execer, m PendingMessage) (string, error) {
	existing, ok, err := findLive(q, sqliteLiveOutbox, m.DedupeKey)
	if err != nil {
		return "", fmt.Errorf("outbox dedupe lookup for %s failed: %w", m.DedupeKey, err)
	}
	if ok {
		slog.Debug("SQLiteStore.EnqueueOutboxMessage: already queued", "dedupeKey", m.DedupeKey, "id", existing)
		return existing, nil
	}

	id := util.GenerateOutboxID()
	now := time.Now().UTC()
	if _, err := q.Exec(
		`INSERT INTO outbox_messages (id, channel, kind, payload_json, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)`,
		id, m.Channel, m.Kind, m.PayloadJSON, nilIfEmpty(m.DedupeKey), now, now,
	); err != nil {
		return "", fmt.Errorf("insert %s message for %s failed: %w", m.Kind, m.Channel, err)
	}
	slog.Debug("SQLiteStore.EnqueueOutboxMessage", "id", id, "channel", m.Channel, "kind", m.Kind)
	return id, nil
}

func (s *SQLiteStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	now = now.UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("claim outbox begin failed: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT `+outboxColumns+` FROM outbox_messages
		 WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	msgs, err := scanOutboxMessages(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for i := range msgs {
		if _, err := tx.Exec(
			`UPDATE outbox_messages SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ?`,
			now, now, msgs[i].ID,
		); err != nil {
			return nil, fmt.Errorf("mark outbox sending failed: %w", err)
		}
		msgs[i].Status = OutboxStatusSending
		msgs[i].LockedAt = &now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim outbox commit failed: %w", err)
	}
	return msgs, nil
}

func (s *SQLiteStore) MarkOutboxMessageSent(id string) error {
	_, err := s.db.Exec(`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbox sent failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	var attempts int
	if err := s.db.QueryRow(`SELECT attempts FROM outbox_messages WHERE id = ?`, id).Scan(&attempts); err != nil {
		return fmt.Errorf("fail outbox lookup failed: %w", err)
	}
	status, attempts := outboxFailureState(attempts)
	_, err := s.db.Exec(
		`UPDATE outbox_messages SET status = ?, attempts = ?, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		status, attempts, errMsg, nextAttemptAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("fail outbox message failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`,
		time.Now().UTC(), staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleSendingMessages", "requeued", n)
	}
	return int(n), nil
}
