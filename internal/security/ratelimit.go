package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sqlrestore/internal/logger"
)

// RateLimiter tracks connection attempts and enforces rate limiting
type RateLimiter struct {
	attempts      map[string]*attemptTracker
	mu            sync.Mutex
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	resetInterval time.Duration
	log           logger.Logger
}

// attemptTracker tracks connection attempts for a specific host
type attemptTracker struct {
	count       int
	lastAttempt time.Time
	nextAllowed time.Time
}

// NewRateLimiter creates a new rate limiter for connection attempts
func NewRateLimiter(maxRetries int, log logger.Logger) *RateLimiter {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RateLimiter{
		attempts:      make(map[string]*attemptTracker),
		maxRetries:    maxRetries,
		baseDelay:     1 * time.Second,
		maxDelay:      60 * time.Second,
		resetInterval: 5 * time.Minute,
		log:           log,
	}
}

// SetBackoff overrides the exponential backoff bounds
func (rl *RateLimiter) SetBackoff(base, max time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.baseDelay = base
	rl.maxDelay = max
}

// CheckAndWait checks if a connection attempt is allowed and waits out the
// backoff if needed. Returns an error once max retries are used up or ctx ends.
func (rl *RateLimiter) CheckAndWait(ctx context.Context, host string) error {
	rl.mu.Lock()

	now := time.Now()
	tracker, exists := rl.attempts[host]

	if !exists {
		// First attempt, allow immediately
		rl.attempts[host] = &attemptTracker{
			count:       1,
			lastAttempt: now,
			nextAllowed: now,
		}
		rl.mu.Unlock()
		return nil
	}

	// Reset counter if enough time has passed
	if now.Sub(tracker.lastAttempt) > rl.resetInterval {
		rl.log.Debug("Resetting rate limit counter", "host", host)
		tracker.count = 1
		tracker.lastAttempt = now
		tracker.nextAllowed = now
		rl.mu.Unlock()
		return nil
	}

	// Check if max retries exceeded
	if tracker.count >= rl.maxRetries {
		rl.mu.Unlock()
		return fmt.Errorf("max connection retries (%d) exceeded for host %s, try again in %v",
			rl.maxRetries, host, rl.resetInterval)
	}

	// Calculate exponential backoff delay
	delay := rl.calculateDelay(tracker.count)
	tracker.nextAllowed = tracker.lastAttempt.Add(delay)
	waitTime := tracker.nextAllowed.Sub(now)
	attempt := tracker.count
	rl.mu.Unlock()

	// Wait if necessary
	if waitTime > 0 {
		rl.log.Info("Rate limiting connection attempt",
			"host", host,
			"attempt", attempt,
			"wait", waitTime.String())

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	rl.mu.Lock()
	tracker.count++
	tracker.lastAttempt = time.Now()
	rl.mu.Unlock()

	return nil
}

// RecordSuccess resets the attempt counter for successful connections
func (rl *RateLimiter) RecordSuccess(host string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if tracker, exists := rl.attempts[host]; exists {
		rl.log.Debug("Connection successful, resetting rate limit", "host", host)
		tracker.count = 0
		tracker.lastAttempt = time.Now()
		tracker.nextAllowed = time.Now()
	}
}

// RecordFailure stamps the failed attempt; CheckAndWait does the counting
func (rl *RateLimiter) RecordFailure(host string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	tracker, exists := rl.attempts[host]

	if !exists {
		rl.attempts[host] = &attemptTracker{
			count:       1,
			lastAttempt: now,
			nextAllowed: now.Add(rl.baseDelay),
		}
		return
	}

	tracker.lastAttempt = now
	tracker.nextAllowed = now.Add(rl.calculateDelay(tracker.count))

	rl.log.Warn("Connection failed",
		"host", host,
		"attempt", tracker.count,
		"max_retries", rl.maxRetries)
}

// calculateDelay calculates exponential backoff delay
func (rl *RateLimiter) calculateDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Exponential backoff: 1s, 2s, 4s, 8s, 16s, 32s, max 60s
	delay := rl.baseDelay * time.Duration(1<<uint(attempt-1))
	if delay > rl.maxDelay {
		delay = rl.maxDelay
	}
	return delay
}

// GetStatus returns current rate limit status for a host
func (rl *RateLimiter) GetStatus(host string) (attempts int, nextAllowed time.Time, isLimited bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	tracker, exists := rl.attempts[host]
	if !exists {
		return 0, time.Now(), false
	}

	return tracker.count, tracker.nextAllowed, time.Now().Before(tracker.nextAllowed)
}
