package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/fablebot/pkg/transcript"
)

var (
	// ErrNotFound is returned by Info and Delete for an unknown session
	ErrNotFound = errors.New("session not found")

	// ErrCorrupt is returned by Load when stored messages cannot be decoded
	ErrCorrupt = errors.New("session transcript is corrupt")
)

// Store is a transcript.Persister that can also enumerate and drop sessions
type Store interface {
	transcript.Persister

	List(ctx context.Context) ([]string, error)
	Info(ctx context.Context, sessionKey string) (Info, error)
	Delete(ctx context.Context, sessionKey string) error
	Close() error
}

// Info describes a stored session
type Info struct {
	SessionKey string    `json:"sessionKey"`
	Messages   int       `json:"messageCount"`
	UpdatedAt  time.Time `json:"lastModified"`
}

// Config selects a storage backend
type Config struct {
	Driver string // jsonl or sqlite
	Dir    string // sessions directory for jsonl
	Path   string // database file for sqlite
}

// Open creates the store named by cfg.Driver
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "jsonl":
		return NewFileStore(cfg.Dir)
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(cfg.Dir, "sessions.db")
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

// ValidateKey rejects session keys that are empty or unsafe as file names
func ValidateKey(sessionKey string) error {
	if sessionKey == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(sessionKey, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(sessionKey, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(sessionKey, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}
