// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides rate limiting using the token bucket algorithm.
package ratelimit

import (
	"context"
	"sync"
	"time"

	mperrors "github.com/absmach/mpdemux/pkg/errors"
)

// ErrRateLimitExceeded is returned when rate limit is exceeded.
var ErrRateLimitExceeded = mperrors.ErrRateLimited

// TokenBucket implements the token bucket algorithm for rate limiting.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // tokens per second
	lastRefill time.Time
}

// NewTokenBucket creates a new token bucket rate limiter.
// capacity is the maximum number of tokens.
// refillRate is the number of tokens added per second.
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow reports whether one token is available and takes it.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN reports whether n tokens are available and takes them.
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}

	return false
}

// Wait blocks until a token is available or ctx is done.
// It fails immediately with ErrRateLimitExceeded if the bucket never refills.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refill()
		if tb.tokens > 0 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		rate := tb.refillRate
		tb.mu.Unlock()

		if rate <= 0 {
			return ErrRateLimitExceeded
		}

		timer := time.NewTimer(time.Second / time.Duration(rate))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tokensToAdd := int64(elapsed * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

// Available returns the number of available tokens.
func (tb *TokenBucket) Available() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens
}

// Limiter manages per-client rate limiters.
type Limiter struct {
	mu           sync.RWMutex
	limiters     map[string]*TokenBucket
	capacity     int64
	refillRate   int64
	maxClients   int
	cleanupTimer *time.Timer
}

// NewLimiter creates a new rate limiter with per-client tracking.
func NewLimiter(capacity, refillRate int64, maxClients int) *Limiter {
	if maxClients == 0 {
		maxClients = 10000
	}

	l := &Limiter{
		limiters:   make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
		maxClients: maxClients,
	}

	l.cleanupTimer = time.AfterFunc(5*time.Minute, l.cleanup)

	return l
}

// Allow checks if a request from the given client should be allowed.
func (l *Limiter) Allow(clientID string) bool {
	return l.AllowN(clientID, 1)
}

// AllowN checks if n requests from the given client should be allowed.
// New clients are refused once maxClients are tracked.
func (l *Limiter) AllowN(clientID string, n int64) bool {
	l.mu.RLock()
	tb, exists := l.limiters[clientID]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		tb, exists = l.limiters[clientID]
		if !exists {
			if len(l.limiters) >= l.maxClients {
				l.mu.Unlock()
				return false
			}

			tb = NewTokenBucket(l.capacity, l.refillRate)
			l.limiters[clientID] = tb
		}
		l.mu.Unlock()
	}

	return tb.AllowN(n)
}

// Remove removes a client's rate limiter.
func (l *Limiter) Remove(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, clientID)
}

// cleanup drops buckets that refilled completely, i.e. clients that have
// been idle for at least capacity/refillRate seconds.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, tb := range l.limiters {
		if tb.Available() >= l.capacity {
			delete(l.limiters, id)
		}
	}

	l.cleanupTimer = time.AfterFunc(5*time.Minute, l.cleanup)
}

// Stats returns the number of tracked clients.
func (l *Limiter) Stats() (clients int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// Close stops the cleanup timer.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cleanupTimer != nil {
		l.cleanupTimer.Stop()
	}
}
