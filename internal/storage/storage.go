package storage

import (
	"sync"
	"time"

	"github.com/lehigh-university-libraries/vision-query/internal/controller"
)

type entry struct {
	controller *controller.Controller
	lastSeen   time.Time
}

// SessionStore maps browser session ids to their controllers. Nothing is
// persisted; a restart forgets every session.
type SessionStore struct {
	sessions map[string]*entry
	mu       sync.Mutex
	now      func() time.Time
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

func (s *SessionStore) Get(sessionID string) (*controller.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists := s.sessions[sessionID]
	if !exists {
		return nil, false
	}
	e.lastSeen = s.now()
	return e.controller, true
}

func (s *SessionStore) Set(sessionID string, c *controller.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = &entry{controller: c, lastSeen: s.now()}
}

// GetOrCreate returns the controller for sessionID, building one with create
// when the session is new or has been swept.
func (s *SessionStore) GetOrCreate(sessionID string, create func() *controller.Controller) *controller.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, exists := s.sessions[sessionID]; exists {
		e.lastSeen = s.now()
		return e.controller
	}
	c := create()
	s.sessions[sessionID] = &entry{controller: c, lastSeen: s.now()}
	return c
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Sweep drops sessions not seen for longer than maxIdle and returns how many
// were removed.
func (s *SessionStore) Sweep(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
