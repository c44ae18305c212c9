package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_uuid TEXT NOT NULL,
			sender TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(user_uuid) REFERENCES users(uuid) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_uuid, created_at);`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Configuration Implementation

func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	query := `INSERT INTO configuration (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := s.db.ExecContext(ctx, query, key, value)
	return err
}

// GetConfig returns "" for unknown keys.
func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM configuration WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// User Implementation

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	query := `INSERT INTO users (uuid, name, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, user.ID, user.Name, user.CreatedAt.UnixMicro())
	return err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT uuid, name, created_at FROM users WHERE uuid = ?`, id)

	var u User
	var created int64
	if err := row.Scan(&u.ID, &u.Name, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	u.CreatedAt = time.UnixMicro(created)
	return &u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, name, created_at FROM users ORDER BY name ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		var created int64
		if err := rows.Scan(&u.ID, &u.Name, &created); err != nil {
			return nil, err
		}
		u.CreatedAt = time.UnixMicro(created)
		users = append(users, &u)
	}
	return users, rows.Err()
}

// Message Implementation

func (s *SQLiteStore) AddMessage(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	query := `INSERT INTO messages (user_uuid, sender, message, created_at) VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, msg.UserID, msg.Sender, msg.Text, msg.CreatedAt.UnixMicro())
	if err != nil {
		return err
	}
	msg.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListMessages(ctx context.Context, userID string) ([]*Message, error) {
	query := `SELECT id, user_uuid, sender, message, created_at FROM messages WHERE user_uuid = ? ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.UserID, &m.Sender, &m.Text, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMicro(created)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) CountMessages(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE user_uuid = ?`, userID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) DeleteMessages(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE user_uuid = ?`, userID)
	return err
}
