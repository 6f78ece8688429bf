package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// PollLimiter caps how often each worker may poll for tasks. A limiter is
// created per worker ID on first use; tokens refill at the configured rate
// with a burst of one full second's worth.
//
// A zero or negative rate disables limiting, so callers never need to
// branch on configuration.
type PollLimiter struct {
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewPollLimiter creates a limiter allowing tokensPerSec polls per worker.
func NewPollLimiter(tokensPerSec float64) *PollLimiter {
	burst := int(tokensPerSec)
	if burst < 1 {
		burst = 1
	}
	return &PollLimiter{
		rate:     rate.Limit(tokensPerSec),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the worker may poll now. Used by the server's
// poll path, which answers "no task" rather than blocking.
func (l *PollLimiter) Allow(workerID string) bool {
	if l == nil || l.rate <= 0 {
		return true
	}
	return l.limiter(workerID).Allow()
}

// Wait blocks until the worker may poll, or the context is done. Used by
// the dev worker loop to pace itself.
func (l *PollLimiter) Wait(ctx context.Context, workerID string) error {
	if l == nil || l.rate <= 0 {
		return ctx.Err()
	}
	return l.limiter(workerID).Wait(ctx)
}

func (l *PollLimiter) limiter(workerID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[workerID]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[workerID] = lim
	}
	return lim
}
