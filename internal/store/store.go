// Package store provides the session table and the record persistence used by
// the event sink.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/containerd/errdefs"

	"github.com/ashureev/greenwatch-runner/internal/domain"
)

// ErrSessionNotFound is returned for unknown session identifiers.
var ErrSessionNotFound = fmt.Errorf("session not found: %w", errdefs.ErrNotFound)

// SessionStore owns every live session. Mutable session fields are only
// reachable through WithExclusiveAccess.
type SessionStore interface {
	// Create registers a new session in collecting mode.
	Create(ctx context.Context) (*domain.Snapshot, error)

	// WithExclusiveAccess runs fn while no other caller can touch the session.
	// fn must not block on I/O.
	WithExclusiveAccess(ctx context.Context, sessionID string, fn func(*domain.Session) error) error

	// History returns up to the last n messages of a session.
	History(ctx context.Context, sessionID string, n int) ([]domain.Message, error)

	// Len reports the number of live sessions.
	Len() int
}

// Record is a persisted event sink entry.
type Record struct {
	ID         int64
	Collection string
	SessionID  string
	Payload    []byte
	CreatedAt  time.Time
}

// RecordRepository persists event sink records.
type RecordRepository interface {
	// UpsertRecord inserts or replaces a record keyed by collection and id.
	UpsertRecord(ctx context.Context, rec *Record) error

	// ListRecords returns the newest records of a collection, newest first.
	ListRecords(ctx context.Context, collection string, limit int) ([]*Record, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
