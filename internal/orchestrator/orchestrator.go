// Package orchestrator runs one conversational turn at a time: it updates the
// session under exclusive access, asks the scripted slot questions, and hands
// active sessions to the generation backend outside the critical section.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"github.com/ashureev/greenwatch-runner/internal/domain"
	"github.com/ashureev/greenwatch-runner/internal/generation"
	"github.com/ashureev/greenwatch-runner/internal/prompt"
	"github.com/ashureev/greenwatch-runner/internal/sink"
	"github.com/ashureev/greenwatch-runner/internal/slots"
	"github.com/ashureev/greenwatch-runner/internal/store"
)

// FallbackText replaces the assistant reply whenever generation fails.
const FallbackText = "I'm having trouble generating a response right now. " +
	"Can you tell me a bit more about what outcome you want?"

// History page bounds.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Notifier receives best-effort records. Notify must not block the caller
// for long and never reports failure.
type Notifier interface {
	Notify(collection string, record sink.Record)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, sink.Record) {}

// StartResult describes a freshly created session.
type StartResult struct {
	SessionID     string                  `json:"session_id"`
	StartedAt     int64                   `json:"started_at"`
	Mode          domain.Mode             `json:"mode"`
	TurnIndex     int                     `json:"turn_index"`
	Slots         map[string]string       `json:"slots"`
	MissingFields []string                `json:"missing_fields"`
	LLM           domain.GenerationResult `json:"llm"`
}

// TurnResult is the reply to one user message.
type TurnResult struct {
	SessionID     string                  `json:"session_id"`
	TurnIndex     int                     `json:"turn_index"`
	Mode          domain.Mode             `json:"mode"`
	AssistantText string                  `json:"assistant_text"`
	Slots         map[string]string       `json:"slots"`
	MissingFields []string                `json:"missing_fields"`
	LLM           domain.GenerationResult `json:"llm"`
}

// Orchestrator drives sessions through slot collection and generation.
type Orchestrator struct {
	store    store.SessionStore
	backend  generation.Backend
	notifier Notifier
	logger   *slog.Logger
}

// New creates an orchestrator. A nil notifier discards records.
func New(st store.SessionStore, backend generation.Backend, notifier Notifier, logger *slog.Logger) *Orchestrator {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    st,
		backend:  backend,
		notifier: notifier,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Backend returns the configured generation backend.
func (o *Orchestrator) Backend() generation.Backend { return o.backend }

// Sessions reports the number of live sessions.
func (o *Orchestrator) Sessions() int { return o.store.Len() }

// Start creates a session in collecting mode.
func (o *Orchestrator) Start(ctx context.Context) (*StartResult, error) {
	snap, err := o.store.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	startedAt := snap.StartedAt.Unix()
	o.notifier.Notify(sink.CollectionSessions, sink.NewRecord(map[string]any{
		"session_id": snap.ID,
		"started_at": startedAt,
	}))
	o.notifier.Notify(sink.CollectionEvents, sink.NewRecord(map[string]any{
		"session_id": snap.ID,
		"type":       "session_start",
	}))
	o.logger.Info("Session started", "session_id", snap.ID)

	return &StartResult{
		SessionID:     snap.ID,
		StartedAt:     startedAt,
		Mode:          snap.Mode,
		TurnIndex:     0,
		Slots:         snap.Slots,
		MissingFields: slots.Missing(snap.Slots),
		LLM:           domain.UnusedResult(o.backend.Name(), o.backend.OnDevice()),
	}, nil
}

// Turn processes one user message. userText is taken as is, including empty
// or blank answers. Unknown sessions yield an errdefs not-found error and a
// blank session id an invalid-argument error; both are reported before any
// state changes. Generation failures never fail the turn.
func (o *Orchestrator) Turn(ctx context.Context, sessionID, userText string) (res *TurnResult, err error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session_id is required: %w", errdefs.ErrInvalidArgument)
	}

	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("Turn panicked", "session_id", sessionID, "panic", p)
			o.reportError(sessionID, "turn", fmt.Sprint(p))
			res = nil
			err = fmt.Errorf("turn failed: %w", errdefs.ErrInternal)
		}
	}()

	return o.turn(ctx, sessionID, userText)
}

func (o *Orchestrator) turn(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	var (
		turnIndex int
		step      slots.StepResult
		snap      *domain.Snapshot
	)

	err := o.store.WithExclusiveAccess(ctx, sessionID, func(s *domain.Session) error {
		s.Turns++
		turnIndex = s.Turns
		s.Append(domain.Message{
			Role:      domain.RoleUser,
			Text:      userText,
			Timestamp: time.Now(),
			TurnIndex: turnIndex,
		})
		step = slots.Step(s, userText)
		snap = s.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &TurnResult{
		SessionID:     sessionID,
		TurnIndex:     turnIndex,
		Mode:          snap.Mode,
		Slots:         snap.Slots,
		MissingFields: slots.Missing(snap.Slots),
	}

	if step.Asked {
		res.AssistantText = step.Question
		res.LLM = domain.UnusedResult(o.backend.Name(), o.backend.OnDevice())
	} else {
		// The turn runs to completion even if the caller goes away.
		genCtx := context.WithoutCancel(ctx)
		llm := o.generate(genCtx, prompt.Build(snap, res.MissingFields, userText))
		res.LLM = llm
		res.AssistantText = llm.Text
		if step.Activated {
			res.AssistantText = slots.Summary(snap.Slots) + "\n\n" + llm.Text
		}
	}

	err = o.store.WithExclusiveAccess(context.WithoutCancel(ctx), sessionID, func(s *domain.Session) error {
		s.Append(domain.Message{
			Role:      domain.RoleAssistant,
			Text:      res.AssistantText,
			Timestamp: time.Now(),
			TurnIndex: turnIndex,
		})
		return nil
	})
	if err != nil {
		if !errors.Is(err, errdefs.ErrNotFound) {
			return nil, fmt.Errorf("record assistant message: %w", err)
		}
		o.logger.Warn("Session vanished before assistant reply was recorded", "session_id", sessionID, "turn_index", turnIndex)
	}

	o.mirrorTurn(res, userText)

	o.logger.Debug("Turn completed",
		"session_id", sessionID,
		"turn_index", turnIndex,
		"mode", res.Mode,
		"llm_used", res.LLM.Used,
		"llm_ok", res.LLM.OK,
	)
	return res, nil
}

// generate calls the backend and substitutes FallbackText on any failure.
// Successful text is trimmed of surrounding whitespace.
func (o *Orchestrator) generate(ctx context.Context, promptText string) domain.GenerationResult {
	if !o.backend.IsLoaded() {
		r := domain.UnusedResult(o.backend.Name(), o.backend.OnDevice())
		r.OK = false
		r.Error = "model not loaded"
		r.Text = FallbackText
		return r
	}

	r := o.backend.Generate(ctx, promptText, generation.DefaultMaxTokens, generation.DefaultTemperature)
	switch {
	case !r.OK:
		if r.Error == "" {
			r.Error = "generation failed"
		}
		o.logger.Warn("Generation failed", "backend", r.ModelName, "error", r.Error, "latency_ms", r.LatencyMS)
		r.Text = FallbackText
	case strings.TrimSpace(r.Text) == "":
		r.OK = false
		r.Error = "empty response"
		r.Text = FallbackText
	default:
		r.Text = strings.TrimSpace(r.Text)
	}
	return r
}

// History returns the newest messages of a session, oldest first. n is
// clamped to [1, MaxHistoryLimit].
func (o *Orchestrator) History(ctx context.Context, sessionID string, n int) ([]domain.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session_id is required: %w", errdefs.ErrInvalidArgument)
	}
	return o.store.History(ctx, sessionID, ClampHistoryLimit(n))
}

// ClampHistoryLimit applies the history page bounds.
func ClampHistoryLimit(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return n
	}
}

func (o *Orchestrator) mirrorTurn(res *TurnResult, userText string) {
	o.notifier.Notify(sink.CollectionMessages, sink.NewRecord(map[string]any{
		"session_id": res.SessionID,
		"role":       string(domain.RoleUser),
		"text":       userText,
		"turn_index": res.TurnIndex,
	}))
	o.notifier.Notify(sink.CollectionMessages, sink.NewRecord(map[string]any{
		"session_id": res.SessionID,
		"role":       string(domain.RoleAssistant),
		"text":       res.AssistantText,
		"turn_index": res.TurnIndex,
	}))
	o.notifier.Notify(sink.CollectionEvents, sink.NewRecord(map[string]any{
		"session_id": res.SessionID,
		"type":       "turn",
		"mode":       string(res.Mode),
		"slots":      res.Slots,
		"turn_index": res.TurnIndex,
		"llm":        res.LLM,
	}))
}

func (o *Orchestrator) reportError(sessionID, where, message string) {
	o.notifier.Notify(sink.CollectionErrors, sink.NewRecord(map[string]any{
		"session_id": sessionID,
		"where":      where,
		"message":    message,
	}))
}
