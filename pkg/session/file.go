package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/fablebot/internal/observability"
	"github.com/harun/fablebot/internal/tracing"
	"github.com/harun/fablebot/pkg/transcript"
)

const fileSuffix = ".jsonl"

// entry is one JSONL line
type entry struct {
	SessionKey string        `json:"sessionKey"`
	Message    storedMessage `json:"message"`
}

type storedMessage struct {
	Role      transcript.Role `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}

// FileStore keeps one JSONL transcript file per session
type FileStore struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewFileStore creates the sessions directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	observability.EnsureRegistered()

	if dir == "" {
		return nil, fmt.Errorf("sessions directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	fs := &FileStore{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", dir).Msg("Session file store initialized")
	fs.updateActiveSessionsMetric()

	return fs, nil
}

func (fs *FileStore) path(sessionKey string) string {
	return filepath.Join(fs.dir, sessionKey+fileSuffix)
}

func (fs *FileStore) writeLock(sessionKey string) *sync.Mutex {
	fs.locksMu.Lock()
	defer fs.locksMu.Unlock()

	if lock, ok := fs.writeLocks[sessionKey]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	fs.writeLocks[sessionKey] = lock
	return lock
}

func (fs *FileStore) updateActiveSessionsMetric() {
	sessions, err := fs.List(context.Background())
	if err != nil {
		return
	}
	observability.SetActiveSessions(len(sessions))
}

// Load reads a session's transcript. A file with a corrupt line is moved aside as
// <key>.jsonl.corrupt-<unix> and ErrCorrupt is returned; the next Load starts empty.
func (fs *FileStore) Load(ctx context.Context, sessionKey string) (*transcript.Transcript, error) {
	ctx, span := tracing.StartSpan(
		tracing.WithSessionKey(ctx, sessionKey),
		"fablebot.session",
		"session.load",
		attribute.String("session_key", sessionKey),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := ValidateKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	messages, err := fs.readMessages(sessionKey)
	if os.IsNotExist(err) {
		return transcript.New(sessionKey), nil
	}
	if errors.Is(err, ErrCorrupt) {
		if qErr := fs.quarantine(sessionKey); qErr != nil {
			err = fmt.Errorf("%w (quarantine failed: %v)", err, qErr)
		}
		logger.Error().Err(err).Msg("Session file is corrupt")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Debug().Int("messages", len(messages)).Msg("Session loaded")
	return transcript.New(sessionKey, messages...), nil
}

func (fs *FileStore) readMessages(sessionKey string) ([]transcript.Message, error) {
	file, err := os.Open(fs.path(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var messages []transcript.Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorrupt, lineNum, err)
		}
		if !e.Message.Role.Valid() {
			return nil, fmt.Errorf("%w: line %d: invalid role %q", ErrCorrupt, lineNum, e.Message.Role)
		}

		messages = append(messages, transcript.Message{Role: e.Message.Role, Content: e.Message.Content})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	return messages, nil
}

// quarantine renames a corrupt session file so it is kept for inspection
func (fs *FileStore) quarantine(sessionKey string) error {
	lock := fs.writeLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	src := fs.path(sessionKey)
	dst := fmt.Sprintf("%s.corrupt-%d", src, time.Now().Unix())
	if err := os.Rename(src, dst); err != nil {
		return err
	}
	log.Warn().Str("session_key", sessionKey).Str("path", dst).Msg("Corrupt session file moved aside")
	return nil
}

// Save writes the transcript to a temp file and renames it over the session file
func (fs *FileStore) Save(ctx context.Context, sessionKey string, t *transcript.Transcript) error {
	ctx, span := tracing.StartSpan(
		tracing.WithSessionKey(ctx, sessionKey),
		"fablebot.session",
		"session.save",
		attribute.String("session_key", sessionKey),
		attribute.Int("messages", t.Len()),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if err := ValidateKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	lock := fs.writeLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	sessionPath := fs.path(sessionKey)
	_, statErr := os.Stat(sessionPath)
	created := os.IsNotExist(statErr)

	if err := fs.writeAtomic(sessionKey, t.Current()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if created {
		fs.updateActiveSessionsMetric()
	}
	logger.Debug().Int("messages", t.Len()).Msg("Session saved")
	return nil
}

func (fs *FileStore) writeAtomic(sessionKey string, messages []transcript.Message) error {
	sessionPath := fs.path(sessionKey)
	tempPath := sessionPath + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	fail := func(err error) error {
		file.Close()
		os.Remove(tempPath)
		return err
	}

	w := bufio.NewWriter(file)
	now := time.Now().UTC()
	for _, msg := range messages {
		data, err := json.Marshal(entry{
			SessionKey: sessionKey,
			Message:    storedMessage{Role: msg.Role, Content: msg.Content, Timestamp: now},
		})
		if err != nil {
			return fail(fmt.Errorf("failed to marshal entry: %w", err))
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fail(fmt.Errorf("failed to write entry: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("failed to flush entries: %w", err))
	}
	if err := file.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync file: %w", err))
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, sessionPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// List returns all stored session keys
func (fs *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	sessions := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(e.Name(), fileSuffix))
	}
	return sessions, nil
}

// Info returns metadata about a session
func (fs *FileStore) Info(ctx context.Context, sessionKey string) (Info, error) {
	if err := ValidateKey(sessionKey); err != nil {
		return Info{}, err
	}

	stat, err := os.Stat(fs.path(sessionKey))
	if os.IsNotExist(err) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat session file: %w", err)
	}

	t, err := fs.Load(ctx, sessionKey)
	if err != nil {
		return Info{}, err
	}

	return Info{
		SessionKey: sessionKey,
		Messages:   t.Len(),
		UpdatedAt:  stat.ModTime(),
	}, nil
}

// Delete removes a session file
func (fs *FileStore) Delete(ctx context.Context, sessionKey string) error {
	if err := ValidateKey(sessionKey); err != nil {
		return err
	}

	lock := fs.writeLock(sessionKey)
	lock.Lock()
	err := os.Remove(fs.path(sessionKey))
	lock.Unlock()

	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	fs.locksMu.Lock()
	delete(fs.writeLocks, sessionKey)
	fs.locksMu.Unlock()

	fs.updateActiveSessionsMetric()
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().Str("session_key", sessionKey).Msg("Session deleted")
	return nil
}

// Close releases store resources
func (fs *FileStore) Close() error {
	return nil
}
