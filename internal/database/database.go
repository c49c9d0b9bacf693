// Package database provides the optional Postgres journal of handled notifications.
// The journal is append-only; the bridge never reads it back.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// OutcomeEntry is one row of the journal.
type OutcomeEntry struct {
	MessageID      string
	RecordID       string
	Product        string
	NotificationTS string
	Status         string
	Classification string
	Topic          string
	Reason         string
	Error          string
	HandledAt      time.Time
}

// ErrJournalMissing is returned when the journal table has not been created.
var ErrJournalMissing = errors.New("outcome journal table does not exist")

const schema = `
	CREATE TABLE IF NOT EXISTS bridge_outcomes (
		id              BIGSERIAL PRIMARY KEY,
		message_id      UUID,
		record_id       TEXT NOT NULL,
		product         TEXT,
		notification_ts TEXT,
		status          TEXT NOT NULL,
		classification  TEXT,
		topic           TEXT,
		reason          TEXT,
		error           TEXT,
		handled_at      TIMESTAMPTZ NOT NULL
	)
`

// DB wraps a database connection and provides journal operations.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection using the provided DSN.
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL database")

	return &DB{conn: conn}, nil
}

// EnsureSchema creates the journal table when it does not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create journal table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		slog.Info("Closing database connection")
		return db.conn.Close()
	}
	return nil
}

// nullable maps an empty string to NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordOutcome appends one entry to the journal.
func (db *DB) RecordOutcome(ctx context.Context, entry *OutcomeEntry) error {
	query := `
		INSERT INTO bridge_outcomes
			(message_id, record_id, product, notification_ts, status, classification, topic, reason, error, handled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	handledAt := entry.HandledAt
	if handledAt.IsZero() {
		handledAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx, query,
		nullable(entry.MessageID),
		entry.RecordID,
		nullable(entry.Product),
		nullable(entry.NotificationTS),
		entry.Status,
		nullable(entry.Classification),
		nullable(entry.Topic),
		nullable(entry.Reason),
		nullable(entry.Error),
		handledAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
			return ErrJournalMissing
		}
		return fmt.Errorf("failed to insert outcome: %w", err)
	}

	slog.Debug("Journaled outcome",
		"record_id", entry.RecordID,
		"status", entry.Status,
	)
	return nil
}
