package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/fablebot/internal/observability"
	"github.com/harun/fablebot/internal/tracing"
)

// ErrClosed is returned for tasks enqueued after Close
var ErrClosed = errors.New("command queue closed")

// Task represents an asynchronous operation to be executed
type Task func(ctx context.Context) (interface{}, error)

// TaskOptions provides configuration for task execution
type TaskOptions struct {
	// RequestID deduplicates redelivered work, e.g. "<session>:<message id>"
	RequestID string
	// WarnAfter logs a warning (and calls OnWait) if the task is still queued after this long
	WarnAfter time.Duration
	OnWait    func(wait time.Duration, queuePos int)
}

// SessionLane returns the lane name that serializes work for one chat session
func SessionLane(sessionID string) string {
	return "session-" + sessionID
}

type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	options    TaskOptions
	result     chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

type laneState struct {
	queue   []*taskRecord
	running bool
}

// CommandQueue serializes tasks per lane
type CommandQueue struct {
	mu        sync.Mutex
	lanes     map[string]*laneState
	taskIDSeq int
	closed    bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	dedup  *dedupCache
	logger zerolog.Logger
}

// Option configures a CommandQueue
type Option func(*CommandQueue)

// WithLogger sets the queue logger
func WithLogger(logger zerolog.Logger) Option {
	return func(cq *CommandQueue) {
		cq.logger = logger.With().Str("component", "commandqueue").Logger()
	}
}

// WithDedupTTL sets how long completed RequestIDs are remembered
func WithDedupTTL(ttl time.Duration) Option {
	return func(cq *CommandQueue) {
		cq.dedup.Stop()
		cq.dedup = newDedupCache(cq.ctx, ttl)
	}
}

// New creates a new CommandQueue
func New(opts ...Option) *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())

	cq := &CommandQueue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
		logger: log.Logger.With().Str("component", "commandqueue").Logger(),
	}
	cq.dedup = newDedupCache(ctx, 0)

	for _, opt := range opts {
		opt(cq)
	}
	return cq
}

// Enqueue adds a task to lane and blocks until it has run.
// Cancelling ctx while the task is queued abandons it with ctx.Err().
func (cq *CommandQueue) Enqueue(ctx context.Context, lane string, task Task, options *TaskOptions) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"fablebot.commandqueue",
		"commandqueue.enqueue",
		attribute.String("lane", lane),
	)
	defer span.End()

	opts := TaskOptions{}
	if options != nil {
		opts = *options
	}

	logger := tracing.LoggerFromContext(ctx, cq.logger)

	if opts.RequestID != "" {
		if cached, ok := cq.dedup.Get(opts.RequestID); ok {
			logger.Info().Str("lane", lane).Str("requestId", opts.RequestID).Msg("Duplicate request skipped")
			return cached.value, cached.err
		}
	}

	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return nil, ErrClosed
	}
	cq.taskIDSeq++
	record := &taskRecord{
		id:         fmt.Sprintf("%s-%d", lane, cq.taskIDSeq),
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		options:    opts,
		result:     make(chan taskResult, 1),
	}
	ls, ok := cq.lanes[lane]
	if !ok {
		ls = &laneState{}
		cq.lanes[lane] = ls
	}
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	cq.mu.Unlock()

	logger.Debug().
		Str("lane", lane).
		Str("taskId", record.id).
		Int("queueSize", queueSize).
		Msg("Task enqueued")

	observability.RecordQueueEnqueue(lane, queueSize)

	if opts.WarnAfter > 0 {
		go cq.startWarnTimer(record, lane)
	}

	cq.processLane(lane)

	select {
	case result := <-record.result:
		if result.err != nil {
			span.RecordError(result.err)
			span.SetStatus(codes.Error, result.err.Error())
		}
		if opts.RequestID != "" {
			cq.dedup.Set(opts.RequestID, result)
		}
		return result.value, result.err
	case <-ctx.Done():
		if cq.abandon(lane, record) {
			return nil, ctx.Err()
		}
		// Already running; wait for it to observe cancellation
		result := <-record.result
		return result.value, result.err
	}
}

// abandon removes a still-queued record; false if it already started
func (cq *CommandQueue) abandon(lane string, record *taskRecord) bool {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	ls, ok := cq.lanes[lane]
	if !ok {
		return false
	}
	for i, r := range ls.queue {
		if r == record {
			ls.queue = append(ls.queue[:i], ls.queue[i+1:]...)
			cq.dropIfIdle(lane, ls)
			return true
		}
	}
	return false
}

// processLane starts the next task of lane if nothing is running there
func (cq *CommandQueue) processLane(lane string) {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	ls, ok := cq.lanes[lane]
	if !ok || ls.running || len(ls.queue) == 0 {
		return
	}

	record := ls.queue[0]
	ls.queue = ls.queue[1:]
	ls.running = true

	cq.wg.Add(1)
	go cq.executeTask(lane, record)
}

// dropIfIdle removes an empty lane; caller holds mu
func (cq *CommandQueue) dropIfIdle(lane string, ls *laneState) {
	if !ls.running && len(ls.queue) == 0 {
		delete(cq.lanes, lane)
	}
}

func (cq *CommandQueue) executeTask(lane string, record *taskRecord) {
	defer cq.wg.Done()

	taskCtx, span := tracing.StartSpan(
		record.ctx,
		"fablebot.commandqueue",
		"commandqueue.execute_task",
		attribute.String("lane", lane),
		attribute.String("task_id", record.id),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(taskCtx, cq.logger)

	runCtx, cancel := context.WithCancel(taskCtx)
	stopCancel := context.AfterFunc(cq.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	startTime := time.Now()
	value, err := cq.run(runCtx, record.task)
	duration := time.Since(startTime)

	cq.mu.Lock()
	ls := cq.lanes[lane]
	ls.running = false
	queueSize := len(ls.queue)
	cq.dropIfIdle(lane, ls)
	cq.mu.Unlock()

	record.result <- taskResult{value: value, err: err}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug().
			Str("lane", lane).
			Str("taskId", record.id).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	} else {
		logger.Debug().
			Str("lane", lane).
			Str("taskId", record.id).
			Dur("duration", duration).
			Msg("Task completed")
	}

	observability.RecordQueueCompletion(lane, duration, err == nil, queueSize)

	cq.processLane(lane)
}

// run executes task, turning a panic into an error so the lane keeps draining
func (cq *CommandQueue) run(ctx context.Context, task Task) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

func (cq *CommandQueue) startWarnTimer(record *taskRecord, lane string) {
	timer := time.NewTimer(record.options.WarnAfter)
	defer timer.Stop()

	select {
	case <-timer.C:
		queuePos := cq.position(lane, record)
		if queuePos < 0 {
			return
		}
		wait := time.Since(record.enqueuedAt)
		cq.logger.Warn().
			Str("lane", lane).
			Str("taskId", record.id).
			Dur("wait", wait).
			Int("queuePos", queuePos).
			Msg("Task waiting longer than expected")

		if record.options.OnWait != nil {
			record.options.OnWait(wait, queuePos)
		}
	case <-record.ctx.Done():
	case <-cq.ctx.Done():
	}
}

func (cq *CommandQueue) position(lane string, record *taskRecord) int {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	ls, ok := cq.lanes[lane]
	if !ok {
		return -1
	}
	for i, r := range ls.queue {
		if r == record {
			return i
		}
	}
	return -1
}

// GetQueueSize returns the number of queued tasks for a lane
func (cq *CommandQueue) GetQueueSize(lane string) int {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	if ls, ok := cq.lanes[lane]; ok {
		return len(ls.queue)
	}
	return 0
}

// GetStats returns queued and running counts for every live lane
func (cq *CommandQueue) GetStats() map[string]map[string]int {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	stats := make(map[string]map[string]int, len(cq.lanes))
	for lane, ls := range cq.lanes {
		running := 0
		if ls.running {
			running = 1
		}
		stats[lane] = map[string]int{
			"queued":  len(ls.queue),
			"running": running,
		}
	}
	return stats
}

// WaitForActive waits for running and queued tasks to drain, up to timeout
func (cq *CommandQueue) WaitForActive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		cq.mu.Lock()
		drained := len(cq.lanes) == 0
		cq.mu.Unlock()

		if drained {
			return true
		}
		if time.Now().After(deadline) {
			cq.logger.Warn().Dur("timeout", timeout).Msg("Timeout waiting for active tasks")
			return false
		}
		<-ticker.C
	}
}

// Close rejects new work, cancels running tasks and waits for them to return
func (cq *CommandQueue) Close() error {
	cq.mu.Lock()
	cq.closed = true
	for lane, ls := range cq.lanes {
		for _, record := range ls.queue {
			record.result <- taskResult{err: ErrClosed}
		}
		ls.queue = nil
		cq.dropIfIdle(lane, ls)
	}
	cq.mu.Unlock()

	cq.cancel()
	cq.wg.Wait()
	cq.dedup.Stop()
	return nil
}
