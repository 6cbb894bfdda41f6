// Package slots implements the scripted slot-filling dialogue that runs before
// a session is handed to the generation backend.
package slots

import (
	"fmt"

	"github.com/ashureev/greenwatch-runner/internal/domain"
)

const genericQuestion = "Tell me more."

var questions = map[string]string{
	domain.SlotRole:      "What's your role onboard? (deck / engine / galley / other)",
	domain.SlotIssueType: "What do you want help with? (fatigue / schedule / safety / pay / conflict / other)",
	domain.SlotUrgency:   "How urgent is it? (now / today / this week)",
}

// NextMissing returns the first unanswered slot in collection order.
func NextMissing(slots map[string]string) (string, bool) {
	for _, name := range domain.SlotNames() {
		if _, ok := slots[name]; !ok {
			return name, true
		}
	}
	return "", false
}

// Missing lists every unanswered slot in collection order.
func Missing(slots map[string]string) []string {
	missing := make([]string, 0, len(domain.SlotNames()))
	for _, name := range domain.SlotNames() {
		if _, ok := slots[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// QuestionFor returns the scripted question for a slot.
func QuestionFor(name string) string {
	if q, ok := questions[name]; ok {
		return q
	}
	return genericQuestion
}

// Summary confirms the collected slots and invites a free-form description.
func Summary(slots map[string]string) string {
	return fmt.Sprintf("Got it. Role: %s, issue: %s, urgency: %s.\n"+
		"Tell me what happened in 2-3 sentences and what outcome you want.",
		slots[domain.SlotRole], slots[domain.SlotIssueType], slots[domain.SlotUrgency])
}

// StepResult is the outcome of one slot-filling step.
type StepResult struct {
	// Question is the scripted reply when Asked is true.
	Question string
	Asked    bool
	// Activated is set on the single turn that moves the session to active mode.
	Activated bool
	// Filled names the slot answered by this step, if any.
	Filled string
}

// Step applies one user message to a session in collecting mode.
// The raw text becomes the answer to the current missing slot without any
// validation. Slots are never overwritten, and an active session is left untouched.
func Step(s *domain.Session, text string) StepResult {
	if s.Mode == domain.ModeActive {
		return StepResult{}
	}

	var res StepResult
	if name, ok := NextMissing(s.Slots); ok {
		s.Slots[name] = text
		res.Filled = name
	}

	if next, ok := NextMissing(s.Slots); ok {
		res.Question = QuestionFor(next)
		res.Asked = true
		return res
	}

	s.Mode = domain.ModeActive
	res.Activated = true
	return res
}
