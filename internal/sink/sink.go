// Package sink mirrors sessions, messages, events and errors to an external
// record store. Mirroring is best effort: nothing in a turn waits on it or
// fails because of it.
package sink

import (
	"context"
	"maps"
	"math/rand/v2"
	"time"
)

// Collections accepted by every sink.
const (
	CollectionSessions = "sessions"
	CollectionEvents   = "events"
	CollectionMessages = "messages"
	CollectionErrors   = "errors"
)

// Sink stores records keyed by collection and record id.
type Sink interface {
	// Upsert writes record into collection.
	Upsert(ctx context.Context, collection string, record Record) error

	// Close releases resources held by the sink.
	Close() error
}

// Record is a loosely typed payload. Every record carries "_id" and "ts".
type Record map[string]any

// NewRecord copies fields and stamps a fresh "_id" and "ts".
func NewRecord(fields map[string]any) Record {
	now := time.Now()
	r := make(Record, len(fields)+2)
	maps.Copy(r, fields)
	r["_id"] = NewRecordID(now)
	r["ts"] = now.Unix()
	return r
}

// NewRecordID returns (unix_ms << 12) | rand(0..4095). Ids are unique with
// high probability, not guaranteed.
func NewRecordID(now time.Time) int64 {
	return now.UnixMilli()<<12 | rand.Int64N(4096)
}

// ID returns the record id, or 0 when missing.
func (r Record) ID() int64 {
	return toInt64(r["_id"])
}

// SessionID returns the session_id field, or "".
func (r Record) SessionID() string {
	s, _ := r["session_id"].(string)
	return s
}

// Timestamp returns the ts field as a time, or the zero time.
func (r Record) Timestamp() time.Time {
	ts := toInt64(r["ts"])
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// Noop discards every record.
type Noop struct{}

func (Noop) Upsert(context.Context, string, Record) error { return nil }
func (Noop) Close() error                                 { return nil }

var _ Sink = Noop{}
