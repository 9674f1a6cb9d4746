package observability

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/fablebot/internal/tracing"
)

// JournalAction names a game event worth keeping after the transcript is gone
type JournalAction string

const (
	JournalRollDice       JournalAction = "roll_dice"
	JournalNewGame        JournalAction = "start_new_game"
	JournalInputBlocked   JournalAction = "input_blocked"
	JournalSessionReset   JournalAction = "session_reset"
	JournalSessionExpired JournalAction = "session_expired"
)

// Journal outcomes
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
)

// JournalEntry is one JSON line of the game journal
type JournalEntry struct {
	Time       string                 `json:"time"`
	SessionKey string                 `json:"session_key"`
	Action     JournalAction          `json:"action"`
	Outcome    string                 `json:"outcome"`
	MessageID  string                 `json:"message_id,omitempty"`
	TraceID    string                 `json:"trace_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Journal appends game events to a JSONL file
type Journal struct {
	mu     sync.Mutex
	logger zerolog.Logger
	file   *os.File
}

// OpenJournal opens path for appending
func OpenJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return &Journal{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	}, nil
}

// Record appends an entry, taking the message and trace ids from ctx.
// The event is also added to the active span.
func (j *Journal) Record(ctx context.Context, sessionKey string, action JournalAction, outcome string, details map[string]interface{}) {
	traceID := tracing.GetTraceID(ctx)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
		span.AddEvent(string(action), trace.WithAttributes(
			attribute.String("journal.session_key", sessionKey),
			attribute.String("journal.outcome", outcome),
		))
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return
	}

	entry := j.logger.Log().
		Str("session_key", sessionKey).
		Str("action", string(action)).
		Str("outcome", outcome)
	if id := tracing.GetMessageID(ctx); id != "" {
		entry.Str("message_id", id)
	}
	if traceID != "" {
		entry.Str("trace_id", traceID)
	}
	if len(details) > 0 {
		entry.Interface("details", details)
	}
	entry.Send()
}

// Close closes the journal file; later records are dropped
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// ReadJournal returns the entries for sessionKey in file order; an empty key returns all.
// A missing journal has no entries.
func ReadJournal(path, sessionKey string) ([]JournalEntry, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", lineNum, err)
		}
		if sessionKey == "" || e.SessionKey == sessionKey {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

var (
	journalMu sync.RWMutex
	journal   *Journal
)

// SetJournal installs the process journal used by RecordJournal; nil disables it
func SetJournal(j *Journal) {
	journalMu.Lock()
	journal = j
	journalMu.Unlock()
}

// RecordJournal appends to the process journal if one is installed
func RecordJournal(ctx context.Context, action JournalAction, sessionKey, outcome string, details map[string]interface{}) {
	journalMu.RLock()
	j := journal
	journalMu.RUnlock()
	if j == nil {
		return
	}
	j.Record(ctx, sessionKey, action, outcome, details)
}
