package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func TestScheduler_AddAndRunNow(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	job := &countingJob{name: "sweep"}

	require.NoError(t, s.Add("@every 1h", job))
	require.NoError(t, s.RunNow("sweep"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&job.runs))
	assert.Error(t, s.RunNow("missing"))
}

func TestScheduler_RejectsDuplicatesAndBadSpecs(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	require.NoError(t, s.Add("*/5 * * * *", &countingJob{name: "a"}))
	assert.Error(t, s.Add("@hourly", &countingJob{name: "a"}))
	assert.Error(t, s.Add("not a schedule", &countingJob{name: "b"}))
}

func TestScheduler_Next(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	require.NoError(t, s.Add("@every 10m", &countingJob{name: "expire"}))
	s.Start()
	defer s.Stop(context.Background())

	next, ok := s.Next("expire")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), next, time.Minute)

	_, ok = s.Next("missing")
	assert.False(t, ok)
}

func TestScheduler_FailingJobDoesNotPanic(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	require.NoError(t, s.Add("@hourly", &countingJob{name: "bad", err: errors.New("disk gone")}))
	assert.NoError(t, s.RunNow("bad"))
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Add("@every 1s", job))
	s.Start()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&job.runs) > 0 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
