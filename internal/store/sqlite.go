package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/canmore-mixology/barkeep/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dsn", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddContactRequest(req models.ContactRequest) error {
	stampContact(&req)
	if err := sqliteInsertContact(s.db, req); err != nil {
		slog.Error("SQLiteStore AddContactRequest failed", "error", err, "id", req.ID)
		return err
	}
	slog.Debug("SQLiteStore AddContactRequest succeeded", "id", req.ID)
	return nil
}

func sqliteInsertContact(q execer, req models.ContactRequest) error {
	_, err := q.Exec(
		`INSERT INTO contact_requests (`+contactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Name, req.Email, nilIfEmpty(req.EventDate), nilIfEmpty(req.EventDetails), req.Message, req.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert contact request %s: %w", req.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveContactRecord(rec ContactRecord) error {
	stampContact(&rec.Request)
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save contact record begin failed: %w", err)
	}
	defer tx.Rollback()

	if err := sqliteInsertContact(tx, rec.Request); err != nil {
		return err
	}
	for _, m := range rec.Notifications {
		if _, err := sqliteInsertOutbox(tx, m); err != nil {
			return err
		}
	}
	if rec.Reminder != nil {
		if _, err := sqliteInsertJob(tx, *rec.Reminder); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save contact record commit failed: %w", err)
	}
	slog.Debug("SQLiteStore SaveContactRecord succeeded", "id", rec.Request.ID, "notifications", len(rec.Notifications), "reminder", rec.Reminder != nil)
	return nil
}

func (s *SQLiteStore) GetContactRequest(id string) (*models.ContactRequest, error) {
	row := s.db.QueryRow(`SELECT `+contactColumns+` FROM contact_requests WHERE id = ?`, id)
	c, err := scanContactRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact request failed: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) ListContactRequests() ([]models.ContactRequest, error) {
	rows, err := s.db.Query(`SELECT ` + contactColumns + ` FROM contact_requests ORDER BY created_at ASC`)
	if err != nil {
		slog.Error("SQLiteStore ListContactRequests query failed", "error", err)
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

func (s *SQLiteStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, channel, status, time) VALUES (?, ?, ?, ?)`, r.To, r.Channel, r.Status, r.Time)
	if err != nil {
		slog.Error("SQLiteStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("SQLiteStore AddReceipt succeeded", "to", r.To, "channel", r.Channel, "status", r.Status)
	return nil
}

func (s *SQLiteStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, channel, status, time FROM receipts ORDER BY id ASC`)
	if err != nil {
		slog.Error("SQLiteStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Channel, &r.Status, &r.Time); err != nil {
			slog.Error("SQLiteStore GetReceipts scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}
