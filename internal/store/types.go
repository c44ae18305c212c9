package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// User is a clinician who owns one conversation.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Message is one stored chat line. Sender is "user" or "bot".
type Message struct {
	ID        int64
	UserID    string
	Sender    string
	Text      string
	CreatedAt time.Time
}

// Storage defines the interface for persistence
type Storage interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	// Messages, oldest first
	AddMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, userID string) ([]*Message, error)
	CountMessages(ctx context.Context, userID string) (int, error)
	DeleteMessages(ctx context.Context, userID string) error

	// Configuration Management
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)

	Close() error
}

// Config selects a backend. Driver is "sqlite" (DSN is a file path) or
// "postgres" (DSN is a connection URL).
type Config struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}
