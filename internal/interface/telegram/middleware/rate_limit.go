package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Per-user token bucket. Keeps a single user from flooding the ledger with
// button presses.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the refill rate.
	RequestsPerMinute int

	// BurstSize is the bucket capacity.
	BurstSize int

	// IdleTTL drops buckets not touched for this long.
	IdleTTL time.Duration

	// Exempt users are never limited.
	Exempt []int64

	Clock timeutil.Clock
}

// DefaultRateLimitConfig returns defaults for rate limiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         10,
		IdleTTL:           10 * time.Minute,
	}
}

// RateLimiter implements per-user rate limiting.
type RateLimiter struct {
	mu      sync.Mutex
	config  RateLimitConfig
	clock   timeutil.Clock
	exempt  map[int64]struct{}
	buckets map[int64]*tokenBucket
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// RateLimitResult is the outcome of Check.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// NewRateLimiter creates a rate limiter. A non-positive rate disables limiting.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Clock == nil {
		config.Clock = timeutil.NewSystemClock(nil)
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	exempt := make(map[int64]struct{}, len(config.Exempt))
	for _, id := range config.Exempt {
		exempt[id] = struct{}{}
	}
	return &RateLimiter{
		config:  config,
		clock:   config.Clock,
		exempt:  exempt,
		buckets: make(map[int64]*tokenBucket),
	}
}

// Check consumes one token for userID.
func (rl *RateLimiter) Check(userID int64) RateLimitResult {
	if rl.config.RequestsPerMinute <= 0 {
		return RateLimitResult{Allowed: true}
	}
	if _, ok := rl.exempt[userID]; ok {
		return RateLimitResult{Allowed: true}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	b, ok := rl.buckets[userID]
	if !ok {
		b = &tokenBucket{tokens: float64(rl.config.BurstSize), lastRefill: now}
		rl.buckets[userID] = b
	}

	rate := float64(rl.config.RequestsPerMinute) / 60.0
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if capacity := float64(rl.config.BurstSize); b.tokens > capacity {
		b.tokens = capacity
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return RateLimitResult{Allowed: true}
	}

	deficit := 1 - b.tokens
	return RateLimitResult{
		Allowed:    false,
		RetryAfter: time.Duration(deficit / rate * float64(time.Second)),
	}
}

// Cleanup drops idle buckets and returns how many were removed.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := rl.clock.Now().Add(-rl.config.IdleTTL)
	removed := 0
	for id, b := range rl.buckets {
		if b.lastRefill.Before(threshold) {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every IdleTTL until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.config.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}
