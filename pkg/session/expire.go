package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/fablebot/internal/observability"
)

// Expirer deletes whole sessions that have not been written for maxAge.
// Transcripts are never trimmed, only dropped entirely.
type Expirer struct {
	store  Store
	maxAge time.Duration
	now    func() time.Time
}

// NewExpirer creates an expirer; maxAge <= 0 disables it
func NewExpirer(store Store, maxAge time.Duration) *Expirer {
	return &Expirer{store: store, maxAge: maxAge, now: time.Now}
}

// Enabled reports whether expiry is configured
func (e *Expirer) Enabled() bool {
	return e.maxAge > 0
}

// Name identifies the job in the scheduler
func (e *Expirer) Name() string {
	return "session-expiry"
}

// Run expires idle sessions
func (e *Expirer) Run(ctx context.Context) error {
	_, err := e.Expire(ctx)
	return err
}

// Expire deletes idle sessions and returns how many were removed
func (e *Expirer) Expire(ctx context.Context) (int, error) {
	if !e.Enabled() {
		return 0, nil
	}

	sessions, err := e.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := e.now()
	deleted := 0

	for _, sessionKey := range sessions {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}

		info, err := e.store.Info(ctx, sessionKey)
		if err != nil {
			log.Warn().Str("session_key", sessionKey).Err(err).Msg("Failed to get session info")
			continue
		}

		age := now.Sub(info.UpdatedAt)
		if age < e.maxAge {
			continue
		}

		if err := e.store.Delete(ctx, sessionKey); err != nil && !errors.Is(err, ErrNotFound) {
			log.Error().Str("session_key", sessionKey).Err(err).Msg("Failed to delete session")
			continue
		}
		deleted++
		observability.RecordJournal(ctx, observability.JournalSessionExpired, sessionKey, observability.OutcomeOK, map[string]interface{}{"age": age.String()})

		log.Debug().Str("session_key", sessionKey).Dur("age", age).Msg("Session expired")
	}

	if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("Expired idle sessions")
	}
	return deleted, nil
}
