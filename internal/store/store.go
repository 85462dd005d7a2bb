// Package store provides storage backends for barkeep.
//
// It persists contact requests and notification receipts, and carries the
// durable job, outbox and dedup repositories that back event reminders and
// outgoing notifications. Backends: in-memory, SQLite and PostgreSQL.
package store

import (
	"errors"
	"strings"

	"github.com/canmore-mixology/barkeep/internal/models"
)

// ErrNotFound is returned when updating a record that does not exist.
var ErrNotFound = errors.New("record not found")

// ContactRecord is a contact request together with the notifications and
// reminder it triggers.
type ContactRecord struct {
	Request       models.ContactRequest
	Notifications []PendingMessage
	Reminder      *PendingJob
}

// Store defines the interface for all storage backends.
type Store interface {
	AddContactRequest(req models.ContactRequest) error
	// SaveContactRecord writes the request, its outbox messages and its
	// reminder job in one transaction. On error nothing is written.
	SaveContactRecord(rec ContactRecord) error
	// GetContactRequest returns nil, nil when no request has the given ID.
	GetContactRequest(id string) (*models.ContactRequest, error)
	ListContactRequests() ([]models.ContactRequest, error)
	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	Close() error

	JobRepo
	OutboxRepo
	DedupRepo
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a function that configures Opts.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// Driver names returned by DetectDSNType.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverMemory   = "memory"
)

// DetectDSNType returns the database/sql driver name for a DSN. Postgres URLs
// and key=value connection strings map to "postgres", the literal "memory"
// maps to the in-memory store, and everything else is treated as an SQLite path.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	switch {
	case strings.EqualFold(d, DriverMemory):
		return DriverMemory
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"):
		return DriverPostgres
	case strings.Contains(d, "host=") && strings.Contains(d, "dbname="):
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

// New opens the backend matching the DSN.
func New(dsn string) (Store, error) {
	switch DetectDSNType(dsn) {
	case DriverMemory:
		return NewInMemoryStore(), nil
	case DriverPostgres:
		return NewPostgresStore(WithPostgresDSN(dsn))
	default:
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	}
}
