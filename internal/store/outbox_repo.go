package store

import (
	"time"
)

// OutboxStatus is where a notification is in delivery. Queued and sending
// messages are live; the rest are terminal.
type OutboxStatus string

const (
	OutboxStatusQueued   OutboxStatus = "queued"
	OutboxStatusSending  OutboxStatus = "sending"
	OutboxStatusSent     OutboxStatus = "sent"
	OutboxStatusFailed   OutboxStatus = "failed"
	OutboxStatusCanceled OutboxStatus = "canceled"
)

// OutboxMaxAttempts bounds delivery retries per message.
const OutboxMaxAttempts = 5

// OutboxMessage is one notification for one channel. PayloadJSON holds the
// contact request it describes.
type OutboxMessage struct {
	ID            string       `json:"id"`
	Channel       string       `json:"channel"`
	Kind          string       `json:"kind"`
	PayloadJSON   string       `json:"payload_json"`
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt *time.Time   `json:"next_attempt_at"`
	DedupeKey     string       `json:"dedupe_key"`
	LockedAt      *time.Time   `json:"locked_at"`
	LastError     string       `json:"last_error"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// PendingMessage is an outbox message that has not been written yet.
type PendingMessage struct {
	Channel     string
	Kind        string
	PayloadJSON string
	DedupeKey   string
}

// OutboxRepo persists the notifications OutboxSender delivers.
type OutboxRepo interface {
	// EnqueueOutboxMessage stores a queued message and returns its ID. A live
	// message with the same non-empty dedupeKey is returned instead.
	EnqueueOutboxMessage(channel, kind, payloadJSON, dedupeKey string) (string, error)

	// ClaimDueOutboxMessages moves up to limit messages ready by now to
	// sending, oldest first.
	ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error)

	MarkOutboxMessageSent(id string) error

	// FailOutboxMessage records errMsg and retries at nextAttemptAt until
	// OutboxMaxAttempts is used up.
	FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error

	// RequeueStaleSendingMessages hands messages locked before staleBefore
	// back to the queue. Called at startup after a crash.
	RequeueStaleSendingMessages(staleBefore time.Time) (int, error)
}
