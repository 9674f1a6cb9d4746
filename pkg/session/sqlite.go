package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/fablebot/internal/observability"
	"github.com/harun/fablebot/internal/tracing"
	"github.com/harun/fablebot/pkg/transcript"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS messages (
		session_key TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_key, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
`

// SQLiteStore keeps all transcripts in one SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	observability.EnsureRegistered()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	log.Info().Str("path", path).Msg("Session database initialized")
	s.updateActiveSessionsMetric()

	return s, nil
}

func (s *SQLiteStore) updateActiveSessionsMetric() {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(DISTINCT session_key) FROM messages").Scan(&count); err != nil {
		return
	}
	observability.SetActiveSessions(count)
}

// Load returns the transcript ordered by sequence number
func (s *SQLiteStore) Load(ctx context.Context, sessionKey string) (*transcript.Transcript, error) {
	ctx, span := tracing.StartSpan(
		tracing.WithSessionKey(ctx, sessionKey),
		"fablebot.session",
		"session.load",
		attribute.String("session_key", sessionKey),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := ValidateKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content FROM messages WHERE session_key = ? ORDER BY seq",
		sessionKey,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []transcript.Message
	for rows.Next() {
		var msg transcript.Message
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if !msg.Role.Valid() {
			return nil, fmt.Errorf("%w: message %d: invalid role %q", ErrCorrupt, len(messages)+1, msg.Role)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return transcript.New(sessionKey, messages...), nil
}

// Save replaces all rows of the session in one transaction
func (s *SQLiteStore) Save(ctx context.Context, sessionKey string, t *transcript.Transcript) error {
	ctx, span := tracing.StartSpan(
		tracing.WithSessionKey(ctx, sessionKey),
		"fablebot.session",
		"session.save",
		attribute.String("session_key", sessionKey),
		attribute.Int("messages", t.Len()),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if err := ValidateKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err := s.replace(ctx, sessionKey, t.Current())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.updateActiveSessionsMetric()
	return nil
}

func (s *SQLiteStore) replace(ctx context.Context, sessionKey string, messages []transcript.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_key = ?", sessionKey); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (session_key, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i, msg := range messages {
		if _, err := stmt.ExecContext(ctx, sessionKey, i, string(msg.Role), msg.Content, now); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List returns all session keys with at least one message
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT session_key FROM messages ORDER BY session_key")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan session key: %w", err)
		}
		sessions = append(sessions, key)
	}
	return sessions, rows.Err()
}

// Info returns message count and last write time
func (s *SQLiteStore) Info(ctx context.Context, sessionKey string) (Info, error) {
	if err := ValidateKey(sessionKey); err != nil {
		return Info{}, err
	}

	var (
		count   int
		updated sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MAX(created_at) FROM messages WHERE session_key = ?",
		sessionKey,
	).Scan(&count, &updated)
	if err != nil {
		return Info{}, fmt.Errorf("failed to query session info: %w", err)
	}
	if count == 0 {
		return Info{}, ErrNotFound
	}

	return Info{
		SessionKey: sessionKey,
		Messages:   count,
		UpdatedAt:  time.Unix(updated.Int64, 0),
	}, nil
}

// Delete removes every row of the session
func (s *SQLiteStore) Delete(ctx context.Context, sessionKey string) error {
	if err := ValidateKey(sessionKey); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE session_key = ?", sessionKey)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.updateActiveSessionsMetric()
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().Str("session_key", sessionKey).Msg("Session deleted")
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
