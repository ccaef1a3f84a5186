package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/myrjola/taleweaver/internal/random"
)

// MemoryStore keeps all session data in process memory. Sessions live until they
// are explicitly deleted or the store goes away with the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	logger   *slog.Logger
}

type memorySession struct {
	state      *game.WorldState
	transcript []game.TranscriptEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*memorySession{},
		logger:   logger.With("source", "MemoryStore"),
	}
}

func (s *MemoryStore) Create(_ context.Context, seed *game.Seed) (*game.WorldState, error) {
	if seed == nil {
		seed = &game.Seed{}
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	state := seed.World()
	if state.SessionID == "" {
		id, err := random.Letters(sessionIDLength)
		if err != nil {
			return nil, errors.Wrap(err, "generate session id")
		}
		state.SessionID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[state.SessionID]; ok {
		return nil, &game.ValidationError{Issues: []game.FieldIssue{
			{Field: "sessionId", Message: "session id already exists"},
		}}
	}
	s.sessions[state.SessionID] = &memorySession{state: state, transcript: nil}

	return state.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*game.WorldState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.Wrap(game.ErrNotFound, "get state", slog.String("session_id", sessionID))
	}
	return session.state.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return errors.Wrap(game.ErrNotFound, "delete session", slog.String("session_id", sessionID))
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) AppendTranscript(_ context.Context, sessionID string, role game.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return errors.Wrap(game.ErrNotFound, "append transcript", slog.String("session_id", sessionID))
	}
	session.transcript = append(session.transcript, game.TranscriptEntry{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *MemoryStore) Transcript(_ context.Context, sessionID string) ([]game.TranscriptEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.Wrap(game.ErrNotFound, "read transcript", slog.String("session_id", sessionID))
	}
	return append([]game.TranscriptEntry(nil), session.transcript...), nil
}

func (s *MemoryStore) ApplyNarrative(_ context.Context, sessionID string, chunk *game.NarrativeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return errors.Wrap(game.ErrNotFound, "apply narrative", slog.String("session_id", sessionID))
	}
	session.state.Merge(chunk.StateDiff)
	if chunk.Text != "" {
		session.transcript = append(session.transcript, game.TranscriptEntry{
			Role:      game.RoleNarrator,
			Content:   chunk.Text,
			CreatedAt: time.Now().UTC(),
		})
	}
	return nil
}
