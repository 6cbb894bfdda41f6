// Package domain holds the conversation types shared by the runner packages.
package domain

import (
	"maps"
	"time"
)

// MaxHistory caps the number of messages retained per session.
const MaxHistory = 100

// Mode is the dialogue phase of a session.
type Mode string

const (
	// ModeCollecting asks scripted slot questions.
	ModeCollecting Mode = "collecting"
	// ModeActive answers with the generation backend.
	ModeActive Mode = "active"
)

// Slot names in the order they are collected.
const (
	SlotRole      = "role"
	SlotIssueType = "issue_type"
	SlotUrgency   = "urgency"
)

// SlotNames returns the required slots in collection order.
func SlotNames() []string {
	return []string{SlotRole, SlotIssueType, SlotUrgency}
}

// Session holds the mutable state of one conversation.
// It is only touched while the session store grants exclusive access.
type Session struct {
	ID        string
	StartedAt time.Time
	Turns     int
	Mode      Mode
	Slots     map[string]string
	History   []Message
}

// NewSession creates a session in collecting mode.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		StartedAt: now,
		Mode:      ModeCollecting,
		Slots:     make(map[string]string),
	}
}

// Append adds a message to the history, dropping the oldest entries past MaxHistory.
func (s *Session) Append(msg Message) {
	s.History = append(s.History, msg)
	if over := len(s.History) - MaxHistory; over > 0 {
		// Copy into a fresh slice so the evicted prefix can be collected.
		kept := make([]Message, MaxHistory)
		copy(kept, s.History[over:])
		s.History = kept
	}
}

// Snapshot returns a deep copy safe to use without holding the store lock.
func (s *Session) Snapshot() *Snapshot {
	history := make([]Message, len(s.History))
	copy(history, s.History)
	return &Snapshot{
		ID:        s.ID,
		StartedAt: s.StartedAt,
		Turns:     s.Turns,
		Mode:      s.Mode,
		Slots:     maps.Clone(s.Slots),
		History:   history,
	}
}

// Snapshot is a detached, read-only copy of a Session.
type Snapshot struct {
	ID        string
	StartedAt time.Time
	Turns     int
	Mode      Mode
	Slots     map[string]string
	History   []Message
}

// Tail returns up to the last n history entries in chronological order.
func (s *Snapshot) Tail(n int) []Message {
	if n <= 0 {
		return nil
	}
	if n >= len(s.History) {
		return s.History
	}
	return s.History[len(s.History)-n:]
}
