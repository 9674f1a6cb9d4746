package commandqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupCache_Shutdown(t *testing.T) {
	cache := newDedupCache(context.Background(), 50*time.Millisecond)
	cache.Stop()

	select {
	case <-cache.done:
		// ok
	case <-time.After(1 * time.Second):
		t.Fatalf("dedup cache cleanup did not stop within timeout")
	}
}

func TestDedupCache_Expiry(t *testing.T) {
	cache := newDedupCache(context.Background(), 30*time.Millisecond)
	defer cache.Stop()

	cache.Set("42:7", taskResult{value: "done", err: errors.New("x")})

	got, ok := cache.Get("42:7")
	assert.True(t, ok)
	assert.Equal(t, "done", got.value)

	assert.Eventually(t, func() bool {
		_, ok := cache.Get("42:7")
		return !ok
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return cache.Size() == 0
	}, time.Second, 10*time.Millisecond)
}
