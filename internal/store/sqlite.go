package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashureev/greenwatch-runner/internal/shared"
)

// SQLiteStore implements RecordRepository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed record repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id INTEGER NOT NULL,
		session_id TEXT,
		payload_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id) WHERE session_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_records_created ON records(collection, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertRecord inserts or replaces a record.
func (s *SQLiteStore) UpsertRecord(ctx context.Context, rec *Record) error {
	query := `
	INSERT INTO records (collection, id, session_id, payload_json, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		session_id = excluded.session_id,
		payload_json = excluded.payload_json,
		created_at = excluded.created_at`

	var sessionID interface{}
	if rec.SessionID != "" {
		sessionID = rec.SessionID
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.Collection, rec.ID, sessionID, string(rec.Payload), rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert record into %s: %w", rec.Collection, shared.ClassifySQLiteError(err))
	}
	return nil
}

// ListRecords returns the newest records of a collection.
func (s *SQLiteStore) ListRecords(ctx context.Context, collection string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT collection, id, session_id, payload_json, created_at
		FROM records WHERE collection = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", shared.ClassifySQLiteError(err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close record rows", "error", closeErr)
		}
	}()

	var records []*Record
	for rows.Next() {
		var rec Record
		var sessionID sql.NullString
		var payload string
		var createdAt int64

		if err := rows.Scan(&rec.Collection, &rec.ID, &sessionID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		rec.SessionID = sessionID.String
		rec.Payload = []byte(payload)
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

var _ RecordRepository = (*SQLiteStore)(nil)
