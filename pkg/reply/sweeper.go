package reply

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/fablebot/internal/observability"
)

// artifactPatterns match files this bot writes into the temp dir
var artifactPatterns = []string{"*_reply_*", "*_voice.*"}

// Sweeper removes audio artifacts orphaned by a crash mid-turn
type Sweeper struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewSweeper creates a sweeper for dir; files younger than maxAge are left alone
func NewSweeper(dir string, maxAge time.Duration, logger zerolog.Logger) *Sweeper {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Sweeper{
		dir:    dir,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger.With().Str("component", "sweeper").Logger(),
	}
}

// Name identifies the job in the scheduler
func (s *Sweeper) Name() string {
	return "artifact-sweep"
}

// Run removes stale artifacts and returns an error only if the directory is unreadable
func (s *Sweeper) Run(ctx context.Context) error {
	cutoff := s.now().Add(-s.maxAge)
	removed := 0

	for _, pattern := range artifactPatterns {
		matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", s.dir, err)
		}

		for _, path := range matches {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove orphaned artifact")
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		observability.RecordArtifactsSwept(removed)
		s.logger.Info().Int("removed", removed).Msg("Orphaned audio artifacts removed")
	}
	return nil
}
