package store

import (
	"context"
	"fmt"
)

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "", "sqlite":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite store needs a database path")
		}
		return NewSQLiteStore(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, cfg.DSN, cfg.MaxConns)
	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
	}
}
