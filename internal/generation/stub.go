package generation

import (
	"context"
	"time"

	"github.com/ashureev/greenwatch-runner/internal/domain"
)

// StubReply is the canned text returned by StubBackend.
const StubReply = "On-device LLM hook is wired (stub). What outcome do you want most right now?"

// StubBackend always answers with StubReply. It is used for demos and tests.
type StubBackend struct{}

// NewStub creates a stub backend.
func NewStub() *StubBackend { return &StubBackend{} }

func (*StubBackend) IsLoaded() bool { return true }
func (*StubBackend) Name() string   { return "stub" }
func (*StubBackend) OnDevice() bool { return true }

// Generate returns the canned reply.
func (b *StubBackend) Generate(_ context.Context, _ string, _ int, _ float64) domain.GenerationResult {
	start := time.Now()
	return succeeded(newResult(b), start, StubReply)
}

// UnreadyBackend stands in for an on-device engine that is not linked yet.
type UnreadyBackend struct {
	reason string
}

// NewUnready creates a backend that reports itself as not loaded.
func NewUnready() *UnreadyBackend {
	return &UnreadyBackend{reason: "ExecuTorch engine skeleton created (not linked/loaded yet)"}
}

func (*UnreadyBackend) IsLoaded() bool { return false }
func (*UnreadyBackend) Name() string   { return "executorch_unwired" }
func (*UnreadyBackend) OnDevice() bool { return true }

// Generate always fails with an explanatory error.
func (b *UnreadyBackend) Generate(_ context.Context, _ string, _ int, _ float64) domain.GenerationResult {
	start := time.Now()
	r := failed(newResult(b), start, b.reason)
	r.Text = "Local model not loaded (ExecuTorch engine not ready)."
	return r
}

var (
	_ Backend = (*StubBackend)(nil)
	_ Backend = (*UnreadyBackend)(nil)
)
