package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollLimiterDisabled(t *testing.T) {
	l := NewPollLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("w1"))
	}
}

func TestPollLimiterNilSafe(t *testing.T) {
	var l *PollLimiter
	assert.True(t, l.Allow("w1"))
	require.NoError(t, l.Wait(context.Background(), "w1"))
}

func TestPollLimiterExhaustsBurst(t *testing.T) {
	l := NewPollLimiter(2)

	// Burst of 2, then the bucket is dry until tokens refill.
	assert.True(t, l.Allow("w1"))
	assert.True(t, l.Allow("w1"))
	assert.False(t, l.Allow("w1"))
}

func TestPollLimiterPerWorkerIsolation(t *testing.T) {
	l := NewPollLimiter(1)

	assert.True(t, l.Allow("w1"))
	assert.False(t, l.Allow("w1"))

	// A different worker gets its own bucket.
	assert.True(t, l.Allow("w2"))
}

func TestPollLimiterWaitHonorsContext(t *testing.T) {
	l := NewPollLimiter(1)
	require.True(t, l.Allow("w1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx, "w1"))
}
