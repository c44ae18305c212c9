package chat

import (
	"sync"
	"time"
)

// EventType names a chat lifecycle event.
type EventType string

const (
	EventUserCreated    EventType = "user_created"
	EventChatOpened     EventType = "chat_opened"
	EventHistoryLoaded  EventType = "history_loaded"
	EventMessageSaved   EventType = "message_saved"
	EventReplyGenerated EventType = "reply_generated"
	EventHistoryCleared EventType = "history_cleared"
	EventSessionsPruned EventType = "sessions_pruned"
)

// Event is published after the corresponding state change is durable.
type Event struct {
	Type      EventType
	Timestamp time.Time
	ChatID    string
	Data      map[string]any
}

// EventHandler is a function that handles events.
type EventHandler func(Event)

// EventBus fans events out to subscribers synchronously.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types.
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allHandlers = append(eb.allHandlers, handler)
}

// Publish sends an event to all registered handlers. A nil bus drops it.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, handler := range eb.handlers[event.Type] {
		handler(event)
	}
	for _, handler := range eb.allHandlers {
		handler(event)
	}
}

func (eb *EventBus) publish(eventType EventType, chatID string, data map[string]any) {
	eb.Publish(Event{Type: eventType, ChatID: chatID, Data: data})
}
