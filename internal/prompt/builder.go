// Package prompt renders a session snapshot into the single text prompt sent to
// the generation backend.
package prompt

import (
	"strings"

	"github.com/ashureev/greenwatch-runner/internal/domain"
)

// HistoryWindow is the number of history entries visible to the backend.
const HistoryWindow = 10

const systemFraming = "You are GreenWatch, a support assistant for seafarers.\n" +
	"Keep replies brief and practical.\n" +
	"Ask at most one question per reply.\n"

// Build composes the prompt for the latest user message.
//
// The snapshot is expected to already contain latestUserText as its newest
// history entry; that entry is rendered once, as the final user line.
func Build(snap *domain.Snapshot, missing []string, latestUserText string) string {
	var b strings.Builder
	b.WriteString(systemFraming)

	b.WriteString("\nKnown details:\n")
	for _, name := range domain.SlotNames() {
		if v, ok := snap.Slots[name]; ok {
			b.WriteString("- ")
			b.WriteString(name)
			b.WriteString("=")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}

	b.WriteString("Missing fields: ")
	if len(missing) == 0 {
		b.WriteString("none")
	} else {
		b.WriteString(strings.Join(missing, ", "))
	}
	b.WriteString("\n\nConversation:\n")

	for _, msg := range window(snap.History, latestUserText) {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Text)
		b.WriteString("\n")
	}

	b.WriteString("user: ")
	b.WriteString(latestUserText)
	b.WriteString("\nassistant:")
	return b.String()
}

// window returns the last HistoryWindow entries preceding the latest user message.
func window(history []domain.Message, latest string) []domain.Message {
	if n := len(history); n > 0 {
		last := history[n-1]
		if last.Role == domain.RoleUser && last.Text == latest {
			history = history[:n-1]
		}
	}
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	return history
}
