package telegram

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by all outbound sends.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastTime time.Time
}

// NewRateLimiter allows maxBurst immediate calls, refilled at perSecond.
func NewRateLimiter(maxBurst int, perSecond float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 30
	}
	if perSecond <= 0 {
		perSecond = 30
	}
	return &RateLimiter{
		tokens:   float64(maxBurst),
		max:      float64(maxBurst),
		rate:     perSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
		if rl.tokens > rl.max {
			rl.tokens = rl.max
		}
		rl.lastTime = now

		if rl.tokens >= 1.0 {
			rl.tokens -= 1.0
			rl.mu.Unlock()
			return nil
		}

		wait := time.Duration((1.0 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}
