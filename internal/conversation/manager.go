package conversation

import (
	"sync"
	"time"
)

// Manager owns one Session per conversation id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// GetOrCreate returns the session for id, creating an empty one if needed.
// The bool is true when the session was created by this call.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	if s := m.Get(id); s != nil {
		return s, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, false
	}
	s := NewSession(id)
	m.sessions[id] = s
	return s, true
}

// Remove drops the session for id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup removes sessions idle for longer than maxIdle and returns how many
// were dropped. Sessions in the middle of an exchange are kept.
func (m *Manager) Cleanup(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if !s.LastUsed().Before(cutoff) || !s.exchange.TryLock() {
			continue
		}
		delete(m.sessions, id)
		s.exchange.Unlock()
		removed++
	}
	return removed
}
