package store

import (
	"context"
	"time"

	"chemviz-client-go/internal/domain/auth/model"
)

// Store holds the single credential pair of a session namespace.
type Store interface {
	// Load returns the stored pair, or an empty pair when nothing is stored.
	Load(ctx context.Context) (model.Credentials, error)
	// Save overwrites the pair wholesale.
	Save(ctx context.Context, creds model.Credentials) error
	// SaveAccessToken replaces the access token and keeps the refresh token.
	SaveAccessToken(ctx context.Context, access string) error
	// Clear erases both tokens.
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver    string
	Namespace string
	File      *FileConfig
	SQLite    *SQLiteConfig
	Redis     *RedisConfig
}

// FileConfig locates the session file.
type FileConfig struct {
	Path string
}

// SQLiteConfig provides the database dependency.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

func namespaceOf(cfg Config) string {
	if cfg.Namespace == "" {
		return "default"
	}
	return cfg.Namespace
}
