// Package chat is the calling layer around the conversation core: it owns
// users and their stored messages, keeps one session per chat in step with
// the store, and runs each exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/syno/internal/conversation"
	"github.com/felixgeelhaar/syno/internal/observe"
	"github.com/felixgeelhaar/syno/internal/store"
)

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmptyName    = errors.New("name must not be empty")
	ErrEmptyMessage = errors.New("message must not be empty")
)

// Replier produces the assistant reply for a session. *generate.Generator
// satisfies it.
type Replier interface {
	Generate(ctx context.Context, session *conversation.Session, userInput string) string
}

// Service is safe for concurrent use across chats.
type Service struct {
	store    store.Storage
	sessions *conversation.Manager
	replier  Replier
	obs      *observe.Observer
	events   *EventBus
}

func NewService(s store.Storage, sessions *conversation.Manager, r Replier, obs *observe.Observer, events *EventBus) *Service {
	return &Service{
		store:    s,
		sessions: sessions,
		replier:  r,
		obs:      obs,
		events:   events,
	}
}

// Events returns the bus the service publishes on.
func (s *Service) Events() *EventBus {
	return s.events
}

// CreateUser stores a new user and starts their chat with a greeting.
func (s *Service) CreateUser(ctx context.Context, name string) (*store.User, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", ErrEmptyName
	}

	user := &store.User{ID: uuid.NewString(), Name: name}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	sess, _ := s.sessions.GetOrCreate(user.ID)
	greeting := sess.AppendSystemGreeting(user.Name)

	s.obs.Log().Info().Str("chat", user.ID).Msg("user created")
	s.events.publish(EventUserCreated, user.ID, map[string]any{"name": user.Name})
	return user, greeting, nil
}

// ListUsers returns all users ordered by name.
func (s *Service) ListUsers(ctx context.Context) ([]*store.User, error) {
	return s.store.ListUsers(ctx)
}

// OpenChat prepares the session for a chat. Without stored messages the
// session restarts with a fresh greeting, which is returned. Otherwise the
// stored history is loaded and resumed is true.
func (s *Service) OpenChat(ctx context.Context, userID string) (greeting string, resumed bool, err error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return "", false, err
	}

	n, err := s.store.CountMessages(ctx, userID)
	if err != nil {
		return "", false, fmt.Errorf("failed to count messages: %w", err)
	}

	sess, _ := s.sessions.GetOrCreate(userID)
	err = sess.Exclusive(func() error {
		if n == 0 {
			sess.Reset()
			greeting = sess.AppendSystemGreeting(user.Name)
			return nil
		}
		return s.loadHistory(ctx, sess)
	})
	if err != nil {
		return "", false, err
	}

	s.events.publish(EventChatOpened, userID, map[string]any{"resumed": n > 0})
	return greeting, n > 0, nil
}

// SendMessage stores the clinician's message, generates the reply, stores
// it as a bot message and returns it. The whole exchange holds the session.
func (s *Service) SendMessage(ctx context.Context, userID, sender, text string) (string, error) {
	if sender == "" {
		sender = SenderUser
	}
	role, err := conversation.RoleFromSender(sender)
	if err != nil {
		return "", err
	}
	if role != conversation.RoleUser {
		return "", &conversation.InvalidRoleError{Value: sender}
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	if _, err := s.user(ctx, userID); err != nil {
		return "", err
	}

	sess, _ := s.sessions.GetOrCreate(userID)
	var reply string
	err = sess.Exclusive(func() error {
		// Sessions dropped by Cleanup or lost on restart come back from the store.
		if sess.Len() == 0 {
			if err := s.loadHistory(ctx, sess); err != nil {
				return err
			}
		}

		if err := s.store.AddMessage(ctx, &store.Message{UserID: userID, Sender: sender, Text: text}); err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
		s.events.publish(EventMessageSaved, userID, map[string]any{"sender": sender})
		sess.AppendUserTurn(text)

		start := time.Now()
		reply = s.replier.Generate(ctx, sess, text)
		if err := s.store.AddMessage(ctx, &store.Message{UserID: userID, Sender: SenderBot, Text: reply}); err != nil {
			return fmt.Errorf("failed to save reply: %w", err)
		}
		sess.AppendAssistantTurn(reply)
		s.events.publish(EventReplyGenerated, userID, map[string]any{
			"elapsed_ms": time.Since(start).Milliseconds(),
			"turns":      sess.Len(),
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

// Messages returns the stored messages of a chat, oldest first.
func (s *Service) Messages(ctx context.Context, userID string) ([]*store.Message, error) {
	return s.store.ListMessages(ctx, userID)
}

// ClearMessages deletes the chat history, restarts the session with a
// greeting and stores that greeting as the first bot message.
func (s *Service) ClearMessages(ctx context.Context, userID string) (string, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return "", err
	}

	sess, _ := s.sessions.GetOrCreate(userID)
	var greeting string
	err = sess.Exclusive(func() error {
		if err := s.store.DeleteMessages(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		sess.Reset()
		greeting = sess.AppendSystemGreeting(user.Name)
		if err := s.store.AddMessage(ctx, &store.Message{UserID: userID, Sender: SenderBot, Text: greeting}); err != nil {
			return fmt.Errorf("failed to save greeting: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.obs.Log().Info().Str("chat", userID).Msg("chat history cleared")
	s.events.publish(EventHistoryCleared, userID, nil)
	return greeting, nil
}

// PruneIdle drops sessions idle longer than maxIdle until ctx ends.
func (s *Service) PruneIdle(ctx context.Context, every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Cleanup(maxIdle); n > 0 {
				s.obs.Log().Debug().Int("sessions", n).Msg("pruned idle sessions")
				s.events.publish(EventSessionsPruned, "", map[string]any{"count": n})
			}
		}
	}
}

func (s *Service) user(ctx context.Context, userID string) (*store.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// loadHistory replaces the session transcript with the stored messages.
// Callers hold the session exclusively.
func (s *Service) loadHistory(ctx context.Context, sess *conversation.Session) error {
	msgs, err := s.store.ListMessages(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	turns := make([]conversation.Turn, 0, len(msgs))
	for _, m := range msgs {
		role, err := conversation.RoleFromSender(m.Sender)
		if err != nil {
			return fmt.Errorf("message %d: %w", m.ID, err)
		}
		turns = append(turns, conversation.Turn{Role: role, Content: m.Text})
	}
	if err := sess.Load(turns); err != nil {
		return err
	}

	s.events.publish(EventHistoryLoaded, sess.ID, map[string]any{"turns": len(turns)})
	return nil
}
