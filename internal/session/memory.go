// Package session keeps per-call dialogue state between turns.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// MemoryStore is a process-local session store. Values are copied on the way
// in and out so callers never share state with the map.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*dialogue.DialogueState
	now      func() time.Time
	logger   *logging.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *logging.Logger) *MemoryStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryStore{
		sessions: make(map[string]*dialogue.DialogueState),
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock overrides the clock used for creation timestamps and eviction.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// GetOrCreate returns the call's state, creating a greeting-phase state if
// none exists.
func (s *MemoryStore) GetOrCreate(_ context.Context, callID string) (*dialogue.DialogueState, error) {
	if callID == "" {
		return nil, errCallIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[callID]; ok {
		return st.Clone(), nil
	}
	st := dialogue.NewDialogueState(callID, s.now())
	s.sessions[callID] = st
	s.logger.Info("created call session", "call_id", callID, "backend", "memory")
	return st.Clone(), nil
}

// Get returns the call's state or dialogue.ErrSessionNotFound.
func (s *MemoryStore) Get(_ context.Context, callID string) (*dialogue.DialogueState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[callID]
	if !ok {
		return nil, dialogue.ErrSessionNotFound
	}
	return st.Clone(), nil
}

// Save replaces an existing session. It never resurrects a removed one.
func (s *MemoryStore) Save(_ context.Context, state *dialogue.DialogueState) error {
	if state == nil || state.CallID == "" {
		return errCallIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[state.CallID]; !ok {
		return dialogue.ErrSessionNotFound
	}
	s.sessions[state.CallID] = state.Clone()
	return nil
}

// Remove deletes the call's session. Removing an unknown call is a no-op.
func (s *MemoryStore) Remove(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, callID)
	return nil
}

// Exists reports whether the call has a session.
func (s *MemoryStore) Exists(_ context.Context, callID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[callID]
	return ok, nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// EvictOlderThan removes sessions created before now-maxAge.
func (s *MemoryStore) EvictOlderThan(_ context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, st := range s.sessions {
		if st.CreatedAt.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
			s.logger.Info("evicted stale call session", "call_id", id, "created_at", st.CreatedAt)
		}
	}
	return evicted, nil
}

var _ dialogue.SessionStore = (*MemoryStore)(nil)
