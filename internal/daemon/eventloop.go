package daemon

import (
	"context"
	"time"

	"github.com/harun/fablebot/internal/observability"
)

const eventLoopInterval = 30 * time.Second

// EventLoop handles the main event processing loop
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: eventLoopInterval,
	}
}

// Run runs the event loop with periodic maintenance tasks
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.logger.Info().Msg("Event loop started")

	e.processTasks(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.logger.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks(ctx)
		}
	}
}

// processTasks refreshes gauges and logs queue stats
func (e *EventLoop) processTasks(ctx context.Context) {
	sessions, err := e.daemon.store.List(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.daemon.logger.Warn().Err(err).Msg("Failed to count sessions")
		}
	} else {
		observability.SetActiveSessions(len(sessions))
	}

	stats := e.daemon.queue.GetStats()
	for lane, laneStats := range stats {
		if laneStats["queued"] > 0 || laneStats["running"] > 0 {
			e.daemon.logger.Debug().
				Str("lane", lane).
				Int("queued", laneStats["queued"]).
				Int("running", laneStats["running"]).
				Msg("Queue stats")
		}
	}
}

// HandleShutdown waits for in-flight turns
func (e *EventLoop) HandleShutdown() {
	e.daemon.logger.Info().Msg("Handling graceful shutdown")

	if e.daemon.queue.WaitForActive(5 * time.Second) {
		e.daemon.logger.Info().Msg("All active tasks completed")
	} else {
		e.daemon.logger.Warn().Msg("Timed out waiting for active tasks")
	}
}
