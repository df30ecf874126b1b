package usecases

import (
	"fmt"
	"sort"
	"sync"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// ConversationFactory builds a fresh conversation for a new session.
type ConversationFactory func() *ConversationManager

// Sessions tracks the live conversations of a process. Each session owns
// its own ConversationManager; there is no shared conversation state.
type Sessions struct {
	factory ConversationFactory

	mu       sync.RWMutex
	sessions map[string]*session
	seq      uint64
}

type session struct {
	manager *ConversationManager
	seq     uint64
}

// NewSessions creates an empty registry.
func NewSessions(factory ConversationFactory) *Sessions {
	return &Sessions{
		factory:  factory,
		sessions: make(map[string]*session),
	}
}

// Create starts a new session.
func (s *Sessions) Create() *ConversationManager {
	m := s.factory()

	s.mu.Lock()
	s.seq++
	s.sessions[m.ID()] = &session{manager: m, seq: s.seq}
	s.mu.Unlock()
	return m
}

// Get returns the session with id.
func (s *Sessions) Get(id string) (*ConversationManager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, entities.ErrNotFound)
	}
	return sess.manager, nil
}

// List returns live sessions in creation order.
func (s *Sessions) List() []*ConversationManager {
	s.mu.RLock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	out := make([]*ConversationManager, len(all))
	for i, sess := range all {
		out[i] = sess.manager
	}
	return out
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// End removes the session and closes its conversation, cancelling any
// in-flight turn.
func (s *Sessions) End(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, entities.ErrNotFound)
	}
	sess.manager.Close()
	return nil
}

// CloseAll ends every session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range all {
		wg.Add(1)
		go func(m *ConversationManager) {
			defer wg.Done()
			m.Close()
		}(sess.manager)
	}
	wg.Wait()
}
