package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/canmore-mixology/barkeep/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddContactRequest(req models.ContactRequest) error {
	stampContact(&req)
	if err := postgresInsertContact(s.db, req); err != nil {
		slog.Error("PostgresStore AddContactRequest failed", "error", err, "id", req.ID)
		return err
	}
	slog.Debug("PostgresStore AddContactRequest succeeded", "id", req.ID)
	return nil
}

func postgresInsertContact(q execer, req models.ContactRequest) error {
	_, err := q.Exec(
		`INSERT INTO contact_requests (`+contactColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.Name, req.Email, nilIfEmpty(req.EventDate), nilIfEmpty(req.EventDetails), req.Message, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contact request %s: %w", req.ID, err)
	}
	return nil
}

func (s *PostgresStore) SaveContactRecord(rec ContactRecord) error {
	stampContact(&rec.Request)
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save contact record begin failed: %w", err)
	}
	defer tx.Rollback()

	if err := postgresInsertContact(tx, rec.Request); err != nil {
		return err
	}
	for _, m := range rec.Notifications {
		if _, err := postgresInsertOutbox(tx, m); err != nil {
			return err
		}
	}
	if rec.Reminder != nil {
		if _, err := postgresInsertJob(tx, *rec.Reminder); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save contact record commit failed: %w", err)
	}
	slog.Debug("PostgresStore SaveContactRecord succeeded", "id", rec.Request.ID, "notifications", len(rec.Notifications), "reminder", rec.Reminder != nil)
	return nil
}

func (s *PostgresStore) GetContactRequest(id string) (*models.ContactRequest, error) {
	c, err := scanContactRequest(s.db.QueryRow(`SELECT `+contactColumns+` FROM contact_requests WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact request failed: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListContactRequests() ([]models.ContactRequest, error) {
	rows, err := s.db.Query(`SELECT ` + contactColumns + ` FROM contact_requests ORDER BY created_at ASC`)
	if err != nil {
		slog.Error("PostgresStore ListContactRequests query failed", "error", err)
		return nil, fmt.Errorf("failed to query contact requests: %w", err)
	}
	defer rows.Close()

	var out []models.ContactRequest
	for rows.Next() {
		c, err := scanContactRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact request row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact request rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, channel, status, time) VALUES ($1, $2, $3, $4)`, r.To, r.Channel, r.Status, r.Time)
	if err != nil {
		slog.Error("PostgresStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("PostgresStore AddReceipt succeeded", "to", r.To, "channel", r.Channel, "status", r.Status)
	return nil
}

func (s *PostgresStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, channel, status, time FROM receipts ORDER BY id ASC`)
	if err != nil {
		slog.Error("PostgresStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()
	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Channel, &r.Status, &r.Time); err != nil {
			slog.Error("PostgresStore GetReceipts scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
