package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/canmore-mixology/barkeep/internal/models"
	"github.com/canmore-mixology/barkeep/internal/util"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// execer is satisfied by *sql.DB and *sql.Tx, so inserts can run alone or
// as part of SaveContactRecord.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// findLive looks up the row a dedupe query matches. An empty key never
// matches anything.
func findLive(q execer, query, dedupeKey string) (string, bool, error) {
	if dedupeKey == "" {
		return "", false, nil
	}
	var id string
	err := q.QueryRow(query, dedupeKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

const jobColumns = `id, kind, run_at, payload_json, status, attempt, max_attempts, last_error, locked_at, dedupe_key, created_at, updated_at`

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job failed: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job rows iteration failed: %w", err)
	}
	return jobs, nil
}

const outboxColumns = `id, channel, kind, payload_json, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`

func scanOutboxMessages(rows *sql.Rows) ([]OutboxMessage, error) {
	var msgs []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var payloadJSON, dedupeKey, lastError sql.NullString
		var nextAttemptAt, lockedAt sql.NullTime
		err := rows.Scan(
			&m.ID, &m.Channel, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
			&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox message failed: %w", err)
		}
		m.PayloadJSON = payloadJSON.String
		m.DedupeKey = dedupeKey.String
		m.LastError = lastError.String
		if nextAttemptAt.Valid {
			m.NextAttemptAt = &nextAttemptAt.Time
		}
		if lockedAt.Valid {
			m.LockedAt = &lockedAt.Time
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox rows iteration failed: %w", err)
	}
	return msgs, nil
}

const contactColumns = `id, name, email, event_date, event_details, message, created_at`

func scanContactRequest(row rowScanner) (models.ContactRequest, error) {
	var c models.ContactRequest
	var eventDate, eventDetails sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &eventDate, &eventDetails, &c.Message, &c.CreatedAt); err != nil {
		return c, err
	}
	c.EventDate = eventDate.String
	c.EventDetails = eventDetails.String
	return c, nil
}

// outboxFailureState decides the row state after a failed send.
func outboxFailureState(attempts int) (OutboxStatus, int) {
	attempts++
	if attempts >= OutboxMaxAttempts {
		return OutboxStatusFailed, attempts
	}
	return OutboxStatusQueued, attempts
}

// stampContact fills the generated fields of a new contact request.
func stampContact(req *models.ContactRequest) {
	if req.ID == "" {
		req.ID = util.GenerateContactRequestID()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
}
