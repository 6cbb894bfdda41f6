package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/greenwatch-runner/internal/domain"
	"github.com/ashureev/greenwatch-runner/internal/identity"
)

// MemoryStore keeps sessions in a process-local map guarded by one mutex.
// Sessions are never expired; they live until the process exits.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	newID    func() string
	now      func() time.Time
	logger   *slog.Logger
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithIDGenerator overrides how session identifiers are generated.
func WithIDGenerator(fn func() string) MemoryOption {
	return func(s *MemoryStore) { s.newID = fn }
}

// WithClock overrides the time source used for session creation.
func WithClock(fn func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = fn }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) MemoryOption {
	return func(s *MemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*domain.Session),
		newID:    identity.NewSessionID,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new session.
func (s *MemoryStore) Create(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for {
		if _, exists := s.sessions[id]; !exists {
			break
		}
		s.logger.Warn("Session id collision, regenerating", "session_id", id)
		id = s.newID()
	}

	sess := domain.NewSession(id, now)
	s.sessions[id] = sess
	return sess.Snapshot(), nil
}

// WithExclusiveAccess runs fn with the table lock held.
func (s *MemoryStore) WithExclusiveAccess(ctx context.Context, sessionID string, fn func(*domain.Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	return fn(sess)
}

// History returns up to the last n messages of a session.
func (s *MemoryStore) History(ctx context.Context, sessionID string, n int) ([]domain.Message, error) {
	var tail []domain.Message
	err := s.WithExclusiveAccess(ctx, sessionID, func(sess *domain.Session) error {
		tail = sess.Snapshot().Tail(n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tail, nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

var _ SessionStore = (*MemoryStore)(nil)
