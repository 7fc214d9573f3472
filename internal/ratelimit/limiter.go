// Package ratelimit throttles the loom MCP tools. Generation calls hit a
// paid model API, so loom_generate is limited hard; the read-only tools
// get generous limits.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket with the configured rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rate    float64          // tokens per second
	burst   int              // max burst size (also initial token count)
	nowFunc func() time.Time // injectable clock for testing
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*tokenBucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow checks if a request for the given key should be allowed.
// Returns true if allowed, false if rate limited.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()

	b, ok := l.buckets[key]
	if !ok {
		// First request for this key: start with full burst
		b = &tokenBucket{
			tokens: float64(l.burst),
			last:   now,
		}
		l.buckets[key] = b
	}

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += l.rate * elapsed
		if b.tokens > float64(l.burst) {
			b.tokens = float64(l.burst)
		}
		b.last = now
	}

	if b.tokens < 1.0 {
		return false
	}

	b.tokens--
	return true
}

// ToolLimiters maps loom tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default per-tool limiter table.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"loom_generate": NewLimiter(10.0/60.0, 2), // 10/minute, burst 2
		"loom_query":    NewLimiter(1.0, 10),      // 60/minute, burst 10
		"loom_review":   NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"loom_records":  NewLimiter(1.0, 10),      // 60/minute, burst 10
	}
}

// Check consumes one token for the named tool. It returns nil when the
// call may proceed and a caller-facing error when the tool is throttled.
// Tools without a configured limiter are never throttled.
func (tl ToolLimiters) Check(tool string) error {
	limiter, ok := tl[tool]
	if !ok {
		return nil
	}

	if !limiter.Allow(tool) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", tool)
	}

	return nil
}
