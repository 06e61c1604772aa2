// Package ratelimit paces browser-facing operations. The crawl is
// single-threaded, but the target site throttles aggressive scroll/click
// bursts, so the orchestrator takes a token before each item open and each
// scroll pass.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter defines the interface for pacing crawl actions
type Limiter interface {
	// Allow checks if an action is allowed under the current limit
	Allow() bool
	// Wait blocks until the limit allows another action or ctx is done
	Wait(ctx context.Context) error
	// Reset resets the limiter state
	Reset()
}

// TokenBucket implements a token bucket limiter
type TokenBucket struct {
	capacity     int           // Maximum number of tokens
	tokens       int           // Current number of tokens
	refillPeriod time.Duration // Period after which bucket is refilled
	lastRefill   time.Time     // Last time the bucket was refilled
	mu           sync.Mutex
}

// NewTokenBucket creates a new token bucket limiter
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// Allow checks if an action can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// Wait blocks until a token is available or the context is cancelled
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		timeUntilRefill := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if timeUntilRefill <= 0 {
			timeUntilRefill = 100 * time.Millisecond
		}

		timer := time.NewTimer(timeUntilRefill)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return nil
}

// Reset resets the token bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// refill adds tokens based on elapsed time
func (tb *TokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}

// Unlimited is a Limiter that never blocks. Used when pacing is disabled.
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
