package store

import (
	"time"
)

// DedupRecord marks a form submission that has already been accepted.
type DedupRecord struct {
	Key         string     `json:"key"`
	Scope       string     `json:"scope"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo guards against processing the same submission twice, keyed by
// an Idempotency-Key header or a payload hash.
type DedupRepo interface {
	// IsDuplicate reports whether key has been recorded and not purged.
	IsDuplicate(key string) (bool, error)

	// RecordSubmission records key as received at. It returns false while
	// an earlier record for key is younger than ttl. An older record is
	// replaced. A ttl of zero or less never expires.
	RecordSubmission(key, scope string, at time.Time, ttl time.Duration) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a key.
	MarkProcessed(key string) error

	// ReleaseSubmission removes an unprocessed record so the submission can
	// be retried. Processed records are kept.
	ReleaseSubmission(key string) error

	// PurgeSubmissions deletes records received before the cutoff and
	// returns how many were removed.
	PurgeSubmissions(before time.Time) (int, error)
}

// expired reports whether a record received at receivedAt no longer blocks
// a submission at now.
func expired(receivedAt, now time.Time, ttl time.Duration) bool {
	return ttl > 0 && receivedAt.Before(now.Add(-ttl))
}

// expiryCutoff is the received_at below which a stored record is replaced.
// The zero time matches nothing.
func expiryCutoff(at time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return at.Add(-ttl)
}
