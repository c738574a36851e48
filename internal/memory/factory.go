package memory

import (
	"context"
	"log/slog"
	"strings"
)

// StoreConfig selects and configures the interaction store backend.
type StoreConfig struct {
	// DatabaseURL selects PostgreSQL when set.
	DatabaseURL string
	// Path selects SQLite when DatabaseURL is empty.
	Path         string
	EmbeddingDim int
	Logger       *slog.Logger
}

// NewStore creates a postgres-backed store when configured, a SQLite file
// store when a path is set, otherwise in-memory.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	if url := strings.TrimSpace(cfg.DatabaseURL); url != "" {
		return NewPostgresStore(ctx, url, cfg.EmbeddingDim)
	}
	if path := strings.TrimSpace(cfg.Path); path != "" {
		return NewSQLiteStore(ctx, path, cfg.Logger)
	}
	return NewInMemoryStore(), nil
}
