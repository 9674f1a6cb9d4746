package daemon

import (
	"fmt"

	"github.com/harun/fablebot/pkg/cron"
	"github.com/harun/fablebot/pkg/reply"
	"github.com/harun/fablebot/pkg/session"
)

// initializeHousekeeping schedules the artifact sweeper and session expiry
func (d *Daemon) initializeHousekeeping() error {
	cfg := d.config
	d.scheduler = cron.NewScheduler(d.logger.GetZerolog())

	if cfg.Housekeeping.SweepSchedule != "" {
		sweeper := reply.NewSweeper(cfg.Reply.TempDir, cfg.Reply.OrphanMaxAge, d.logger.GetZerolog())
		if err := d.scheduler.Add(cfg.Housekeeping.SweepSchedule, sweeper); err != nil {
			return fmt.Errorf("failed to schedule artifact sweeper: %w", err)
		}
	}

	expirer := session.NewExpirer(d.store, cfg.Storage.Retention)
	if expirer.Enabled() && cfg.Housekeeping.ExpirySchedule != "" {
		if err := d.scheduler.Add(cfg.Housekeeping.ExpirySchedule, expirer); err != nil {
			return fmt.Errorf("failed to schedule session expiry: %w", err)
		}
		d.logger.Info().
			Dur("retention", cfg.Storage.Retention).
			Msg("Session expiry scheduled")
	}

	return nil
}
