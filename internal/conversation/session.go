// Package conversation keeps the per-conversation transcript and renders the
// prompt sent to the model.
package conversation

import (
	"fmt"
	"sync"
	"time"
)

// Turn is one transcript entry.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is an ordered transcript owned by one conversation. All methods
// are safe for concurrent use; Exclusive additionally serializes whole
// exchanges.
type Session struct {
	ID string

	mu       sync.RWMutex
	turns    []Turn
	lastUsed time.Time

	exchange sync.Mutex
}

// NewSession creates an empty session.
func NewSession(id string) *Session {
	return &Session{
		ID:       id,
		turns:    make([]Turn, 0),
		lastUsed: time.Now(),
	}
}

// Greeting renders the opening line for a clinician.
func Greeting(name string) string {
	return fmt.Sprintf("Hello, %s! How can I assist you today?", name)
}

// AppendSystemGreeting appends the greeting as a system turn and returns it.
// Repeated calls append repeated greetings.
func (s *Session) AppendSystemGreeting(name string) string {
	g := Greeting(name)
	s.append(Turn{Role: RoleSystem, Content: g})
	return g
}

func (s *Session) AppendUserTurn(content string) {
	s.append(Turn{Role: RoleUser, Content: content})
}

func (s *Session) AppendAssistantTurn(content string) {
	s.append(Turn{Role: RoleAssistant, Content: content})
}

func (s *Session) append(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	s.lastUsed = time.Now()
}

// Reset empties the transcript.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = make([]Turn, 0)
	s.lastUsed = time.Now()
}

// Load replaces the transcript. On an unknown role nothing changes.
func (s *Session) Load(turns []Turn) error {
	loaded := make([]Turn, len(turns))
	for i, t := range turns {
		if !t.Role.Valid() {
			return &InvalidRoleError{Value: string(t.Role)}
		}
		loaded[i] = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = loaded
	s.lastUsed = time.Now()
	return nil
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// LastUsed is the time of the latest mutation.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// RenderPrompt builds [system rolePrompt, transcript..., user userInput,
// system evidenceText]. The user input is included even when the transcript
// already ends with it.
func (s *Session) RenderPrompt(rolePrompt, userInput, evidenceText string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prompt := make([]Turn, 0, len(s.turns)+3)
	prompt = append(prompt, Turn{Role: RoleSystem, Content: rolePrompt})
	prompt = append(prompt, s.turns...)
	prompt = append(prompt, Turn{Role: RoleUser, Content: userInput})
	prompt = append(prompt, Turn{Role: RoleSystem, Content: evidenceText})
	return prompt
}

// Exclusive runs fn while holding the session's exchange lock, so one
// append-generate-append sequence cannot interleave with another.
func (s *Session) Exclusive(fn func() error) error {
	s.exchange.Lock()
	defer s.exchange.Unlock()
	return fn()
}
