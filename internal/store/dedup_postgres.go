package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Compile-time check that PostgresStore implements DedupRepo.
var _ DedupRepo = (*PostgresStore)(nil)

func (s *PostgresStore) IsDuplicate(key string) (bool, error) {
	var k string
	err := s.db.QueryRow(`SELECT dedup_key FROM submission_dedup WHERE dedup_key = $1`, key).Scan(&k)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) RecordSubmission(key, scope string, at time.Time, ttl time.Duration) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO submission_dedup (dedup_key, scope, received_at) VALUES ($1, $2, $3)
		 ON CONFLICT (dedup_key) DO UPDATE
		 SET scope = EXCLUDED.scope, received_at = EXCLUDED.received_at, processed_at = NULL
		 WHERE submission_dedup.received_at < $4`,
		key, scope, at, expiryCutoff(at, ttl),
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

func (s *PostgresStore) MarkProcessed(key string) error {
	_, err := s.db.Exec(`UPDATE submission_dedup SET processed_at = $1 WHERE dedup_key = $2`, time.Now(), key)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReleaseSubmission(key string) error {
	_, err := s.db.Exec(`DELETE FROM submission_dedup WHERE dedup_key = $1 AND processed_at IS NULL`, key)
	if err != nil {
		return fmt.Errorf("release submission failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeSubmissions(before time.Time) (int, error) {
	result, err := s.db.Exec(`DELETE FROM submission_dedup WHERE received_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge submissions failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.PurgeSubmissions", "removed", n)
	}
	return int(n), nil
}
