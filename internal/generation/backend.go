// Package generation provides the text generation backends consulted once a
// session leaves slot collection.
//
// Every backend reports failures inside the returned domain.GenerationResult;
// Generate never returns a Go error and never panics on transport problems.
package generation

import (
	"context"
	"time"

	"github.com/ashureev/greenwatch-runner/internal/domain"
)

// Fixed sampling parameters used for every turn.
const (
	DefaultMaxTokens   = 128
	DefaultTemperature = 0.7
)

// Backend is a text completion provider.
type Backend interface {
	// IsLoaded reports whether the backend can serve requests.
	IsLoaded() bool

	// Name identifies the backend or model.
	Name() string

	// OnDevice reports whether generation runs on the local device.
	OnDevice() bool

	// Generate produces a completion for prompt.
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) domain.GenerationResult
}

// newResult starts a used result stamped with the backend identity.
func newResult(b Backend) domain.GenerationResult {
	return domain.GenerationResult{
		Used:      true,
		OnDevice:  b.OnDevice(),
		ModelName: b.Name(),
	}
}

// failed finishes r as a failure.
func failed(r domain.GenerationResult, start time.Time, msg string) domain.GenerationResult {
	r.OK = false
	r.Error = msg
	r.LatencyMS = time.Since(start).Milliseconds()
	return r
}

// succeeded finishes r with generated text.
func succeeded(r domain.GenerationResult, start time.Time, text string) domain.GenerationResult {
	r.OK = true
	r.Text = text
	r.LatencyMS = time.Since(start).Milliseconds()
	return r
}
