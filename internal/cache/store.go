// Package cache persists session timelines locally so a restart can restore
// the view instantly, before any network round-trip completes. Entries carry
// a version counter: a write with an older version than the stored entry is
// rejected, so a stale in-flight write can never clobber a newer merge.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samsaffron/agentwire/internal/timeline"
)

// Entry is one cached timeline.
type Entry struct {
	SessionID string             `json:"session_id"`
	Messages  []timeline.Message `json:"messages"`
	Timestamp time.Time          `json:"timestamp"`
	Version   int64              `json:"version"`
}

// Store reads and writes cached timelines.
type Store interface {
	// Read returns the entry for the session, or nil if none is cached.
	Read(ctx context.Context, sessionID string) (*Entry, error)

	// Write stores the entry if its version is not older than the stored
	// one. Returns false when the write was rejected as stale.
	Write(ctx context.Context, e Entry) (bool, error)

	// Sessions lists cached session ids, most recently written first.
	Sessions(ctx context.Context) ([]Entry, error)

	// Delete removes a session's entry.
	Delete(ctx context.Context, sessionID string) error

	Close() error
}

// Config holds cache storage configuration.
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // override db location
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{Enabled: true}
}

// DBPath resolves the cache database location, honoring XDG_DATA_HOME.
func DBPath(cfg Config) (string, error) {
	if cfg.Path != "" {
		return cfg.Path, nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentwire", "cache.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "agentwire", "cache.db"), nil
}

// NewStore creates a Store based on configuration. When disabled, a no-op
// store is returned so callers never branch.
func NewStore(cfg Config) (Store, error) {
	if !cfg.Enabled {
		return &NoopStore{}, nil
	}
	path, err := DBPath(cfg)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(path)
}

// NoopStore discards writes and reads nothing.
type NoopStore struct{}

func (*NoopStore) Read(context.Context, string) (*Entry, error) { return nil, nil }
func (*NoopStore) Write(context.Context, Entry) (bool, error)   { return true, nil }
func (*NoopStore) Sessions(context.Context) ([]Entry, error)    { return nil, nil }
func (*NoopStore) Delete(context.Context, string) error         { return nil }
func (*NoopStore) Close() error                                 { return nil }
