package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Compile-time check that SQLiteStore implements DedupRepo.
var _ DedupRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) IsDuplicate(key string) (bool, error) {
	var k string
	err := s.db.QueryRow(`SELECT dedup_key FROM submission_dedup WHERE dedup_key = ?`, key).Scan(&k)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) RecordSubmission(key, scope string, at time.Time, ttl time.Duration) (bool, error) {
	at = at.UTC()
	result, err := s.db.Exec(
		`INSERT INTO submission_dedup (dedup_key, scope, received_at) VALUES (?, ?, ?)
		 ON CONFLICT (dedup_key) DO UPDATE
		 SET scope = excluded.scope, received_at = excluded.received_at, processed_at = NULL
		 WHERE submission_dedup.received_at < ?`,
		key, scope, at, expiryCutoff(at, ttl).UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("record submission failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkProcessed(key string) error {
	_, err := s.db.Exec(`UPDATE submission_dedup SET processed_at = ? WHERE dedup_key = ?`, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReleaseSubmission(key string) error {
	_, err := s.db.Exec(`DELETE FROM submission_dedup WHERE dedup_key = ? AND processed_at IS NULL`, key)
	if err != nil {
		return fmt.Errorf("release submission failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PurgeSubmissions(before time.Time) (int, error) {
	result, err := s.db.Exec(`DELETE FROM submission_dedup WHERE received_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge submissions failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.PurgeSubmissions", "removed", n)
	}
	return int(n), nil
}
