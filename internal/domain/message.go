package domain

import (
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single history entry. Messages are never modified after they
// are appended to a session.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
	TurnIndex int       `json:"turn_index"`
}
