// Package cron runs periodic housekeeping jobs such as sweeping orphaned
// audio artifacts and expiring idle sessions.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of periodic work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler wraps a robfig cron runner with logging and graceful stop
type Scheduler struct {
	c      *cron.Cron
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// NewScheduler creates a scheduler. Specs use the standard five fields or
// descriptors such as "@every 15m" and "@daily".
func NewScheduler(logger zerolog.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c:      cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger.With().Str("component", "cron").Logger(),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Add schedules job on spec; names must be unique
func (s *Scheduler) Add(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already scheduled", job.Name())
	}

	id, err := s.c.AddFunc(spec, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, job.Name(), err)
	}
	s.jobs[job.Name()] = id

	s.logger.Info().Str("job", job.Name()).Str("schedule", spec).Msg("Job scheduled")
	return nil
}

// RunNow executes a scheduled job immediately, outside its schedule
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	s.c.Entry(id).WrappedJob.Run()
	return nil
}

// Next returns the next activation time of a job
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.c.Entry(id).Next, true
}

func (s *Scheduler) run(job Job) {
	started := time.Now()
	err := job.Run(s.ctx)
	logger := s.logger.With().Str("job", job.Name()).Dur("duration", time.Since(started)).Logger()
	if err != nil {
		logger.Error().Err(err).Msg("Job failed")
		return
	}
	logger.Debug().Msg("Job finished")
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop cancels running jobs and waits for them up to ctx's deadline
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
