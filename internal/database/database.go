package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const defaultBusyTimeout = 5 * time.Second

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// DB is the relational store of the exchange engine.
//
// Every transaction is opened with BEGIN IMMEDIATE, so the writer lock is
// taken before the first read of a transition and all checks made inside the
// transaction stay valid until commit.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// Options tunes the connection. Zero values fall back to defaults.
type Options struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	return NewDBWithOptions(path, Options{}, logger)
}

func NewDBWithOptions(path string, opts Options, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = defaultBusyTimeout
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		path, opts.BusyTimeout.Milliseconds())

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch {
	case path == ":memory:":
		// every connection would get its own empty database
		sqlDB.SetMaxOpenConns(1)
	case opts.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	l := logger.With().Str("component", "database").Logger()
	l.Info().Str("path", path).Msg("database initialized")

	return &DB{DB: sqlDB, logger: &l}, nil
}

// HealthCheck verifies the connection.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// withTx runs fn inside one immediate transaction and commits when fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            owner_id INTEGER NOT NULL,
            title TEXT NOT NULL DEFAULT '',
            available BOOLEAN NOT NULL DEFAULT 1,
            status_reason TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS exchange_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            requester_id INTEGER NOT NULL,
            receiver_id INTEGER NOT NULL,
            desired_book_id INTEGER NOT NULL REFERENCES books(id),
            accepted_book_id INTEGER REFERENCES books(id),
            state TEXT NOT NULL DEFAULT 'Pending',
            place TEXT NOT NULL DEFAULT '',
            scheduled_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS request_offers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            request_id INTEGER NOT NULL REFERENCES exchange_requests(id),
            book_id INTEGER NOT NULL REFERENCES books(id),
            UNIQUE(request_id, book_id)
        )`,
		`CREATE TABLE IF NOT EXISTS exchanges (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            request_id INTEGER NOT NULL UNIQUE REFERENCES exchange_requests(id),
            committed_book_id INTEGER NOT NULL REFERENCES books(id),
            place TEXT NOT NULL,
            scheduled_at DATETIME,
            state TEXT NOT NULL,
            completed_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS meeting_points (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            kind TEXT NOT NULL DEFAULT 'OTHER',
            address TEXT NOT NULL DEFAULT '',
            latitude REAL NOT NULL DEFAULT 0,
            longitude REAL NOT NULL DEFAULT 0,
            enabled BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS meeting_proposals (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            exchange_id INTEGER NOT NULL REFERENCES exchanges(id),
            proposed_by INTEGER NOT NULL,
            method TEXT NOT NULL,
            address TEXT NOT NULL DEFAULT '',
            latitude REAL,
            longitude REAL,
            point_id INTEGER REFERENCES meeting_points(id),
            scheduled_at DATETIME NOT NULL,
            notes TEXT NOT NULL DEFAULT '',
            state TEXT NOT NULL DEFAULT 'Pending',
            decided_by INTEGER,
            decided_at DATETIME,
            active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS completion_codes (
            exchange_id INTEGER PRIMARY KEY REFERENCES exchanges(id),
            code TEXT NOT NULL UNIQUE,
            expires_at DATETIME NOT NULL,
            used_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS ratings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            exchange_id INTEGER NOT NULL REFERENCES exchanges(id),
            rater_id INTEGER NOT NULL,
            ratee_id INTEGER NOT NULL,
            score INTEGER NOT NULL CHECK (score BETWEEN 1 AND 5),
            comment TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            UNIQUE(exchange_id, rater_id)
        )`,
		`CREATE TABLE IF NOT EXISTS conversations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            exchange_id INTEGER NOT NULL UNIQUE REFERENCES exchanges(id),
            last_message_id INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id INTEGER NOT NULL REFERENCES conversations(id),
            user_id INTEGER NOT NULL,
            role TEXT NOT NULL,
            PRIMARY KEY (conversation_id, user_id)
        )`,
		`CREATE TABLE IF NOT EXISTS conversation_messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            conversation_id INTEGER NOT NULL REFERENCES conversations(id),
            sender_id INTEGER,
            body TEXT NOT NULL,
            system BOOLEAN NOT NULL DEFAULT 0,
            sent_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS notify_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            exchange_id INTEGER NOT NULL,
            body TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_books_owner ON books(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_desired_state ON exchange_requests(desired_book_id, state)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_requester ON exchange_requests(requester_id, state)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_receiver ON exchange_requests(receiver_id, state)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_book ON request_offers(book_id)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_book_state ON exchanges(committed_book_id, state)`,
		`CREATE INDEX IF NOT EXISTS idx_notify_queue_status ON notify_queue(status, next_retry_at)`,

		// at most one pending request per requester and desired book
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_requests_pending
            ON exchange_requests(requester_id, desired_book_id) WHERE state = 'Pending'`,
		// at most one pending and one accepted proposal per exchange
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_proposals_pending
            ON meeting_proposals(exchange_id) WHERE state = 'Pending'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_proposals_accepted
            ON meeting_proposals(exchange_id) WHERE state = 'Accepted'`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
